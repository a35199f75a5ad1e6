package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore implements PassageStore using a Qdrant collection whose
// payload holds the passage text.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a new Qdrant passage store client
// url should be in format "host:port" (e.g., "localhost:6334")
func NewQdrantStore(ctx context.Context, url, collection string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant collection %q does not exist", collection)
	}

	return &QdrantStore{client: client, collection: collection}, nil
}

// Close closes the Qdrant client connection
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Passages fetches points by id. Ids that are valid Qdrant point ids
// (unsigned integers or UUIDs) are fetched directly; any others are matched
// against the pid payload field.
func (s *QdrantStore) Passages(ctx context.Context, ids []string) (map[string]Passage, error) {
	pointIDs, keywords := splitIDs(ids)
	out := make(map[string]Passage, len(ids))

	if len(pointIDs) > 0 {
		points, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.collection,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get points: %w", err)
		}
		for _, point := range points {
			p := passageFromPayload(point.Payload)
			if p.ID == "" {
				p.ID = pointIDString(point.Id)
			}
			out[p.ID] = p
		}
	}

	if len(keywords) > 0 {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatchKeywords(PayloadID, keywords...),
				},
			},
			Limit:       qdrant.PtrOf(uint32(len(keywords))),
			WithPayload: qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, point := range points {
			p := passageFromPayload(point.Payload)
			if p.ID != "" {
				out[p.ID] = p
			}
		}
	}

	return out, nil
}

// splitIDs separates ids Qdrant accepts as point ids from the rest.
func splitIDs(ids []string) ([]*qdrant.PointId, []string) {
	var (
		pointIDs []*qdrant.PointId
		keywords []string
	)
	for _, id := range ids {
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			pointIDs = append(pointIDs, qdrant.NewIDNum(n))
			continue
		}
		if _, err := uuid.Parse(id); err == nil {
			pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
			continue
		}
		keywords = append(keywords, id)
	}
	return pointIDs, keywords
}

func passageFromPayload(payload map[string]*qdrant.Value) Passage {
	var p Passage
	if v, ok := payload[PayloadID]; ok {
		p.ID = v.GetStringValue()
	}
	if v, ok := payload[PayloadText]; ok {
		p.Text = v.GetStringValue()
	}
	if v, ok := payload[PayloadTitle]; ok {
		p.Title = v.GetStringValue()
	}
	return p
}

func pointIDString(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// Ensure QdrantStore implements PassageStore
var _ PassageStore = (*QdrantStore)(nil)
