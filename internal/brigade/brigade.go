package brigade

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sitework/internal/docstore"
	"sitework/internal/domain"
)

// Payload keys rewritten by EnsureOnSubtaskPayload.
const (
	assigneesField = "assignees"
	idField        = "brigade_id"
	snapshotField  = "brigade_snapshot"
)

// Service manages work crews stored as documents. Crew identity is
// derived from membership, so the same member set always resolves to the
// same crew.
type Service struct {
	Store docstore.Store
	Now   func() time.Time
}

// MakeID derives the deterministic crew id: SHA-1 over the sorted member
// ids joined with "|".
func MakeID(members []string) string {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(sum[:])
}

// Snapshot freezes the crew composition for embedding into a subtask.
func Snapshot(name string, members []string) *domain.BrigadeSnapshot {
	snap := &domain.BrigadeSnapshot{
		BrigadeName: name,
		Members:     make([]domain.BrigadeMember, 0, len(members)),
	}
	for _, id := range members {
		snap.Members = append(snap.Members, domain.BrigadeMember{UserID: id})
	}
	return snap
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create stores a crew under its derived id. The name defaults to a short
// prefix of the id when omitted.
func (s Service) Create(ctx context.Context, name string, members []string, createdBy string) (domain.Brigade, error) {
	if len(members) == 0 {
		return domain.Brigade{}, errors.New("members are required")
	}
	id := MakeID(members)
	if name == "" {
		name = fmt.Sprintf("Brigade %s", id[:6])
	}
	b := domain.Brigade{
		BrigadeID:   id,
		BrigadeName: name,
		Members:     Snapshot(name, members).Members,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
		CreatedBy:   createdBy,
	}
	raw, err := json.Marshal(&b)
	if err != nil {
		return domain.Brigade{}, err
	}
	if _, err := s.Store.Put(ctx, docstore.Brigades, id, raw, 0); err != nil {
		return domain.Brigade{}, err
	}
	return b, nil
}

// Get loads a crew by id. Absence surfaces as docstore.ErrNotFound.
func (s Service) Get(ctx context.Context, id string) (domain.Brigade, error) {
	raw, _, err := s.Store.Get(ctx, docstore.Brigades, id)
	if err != nil {
		return domain.Brigade{}, err
	}
	var b domain.Brigade
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.Brigade{}, fmt.Errorf("decode brigade %s: %w", id, err)
	}
	return b, nil
}

// CreateOrGetByMembers resolves the crew for a member set, creating it on
// first use. Concurrent first assignments of the same crew converge on the
// copy that won the insert.
func (s Service) CreateOrGetByMembers(ctx context.Context, members []string, name, createdBy string) (domain.Brigade, error) {
	id := MakeID(members)
	b, err := s.Get(ctx, id)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return domain.Brigade{}, err
	}
	b, err = s.Create(ctx, name, members, createdBy)
	if errors.Is(err, docstore.ErrVersionConflict) {
		return s.Get(ctx, id)
	}
	return b, err
}

// Search filters crews by name substring and member id. Both filters are
// optional.
func (s Service) Search(ctx context.Context, name, memberID string, size int) ([]domain.Brigade, error) {
	docs, err := s.Store.Query(ctx, docstore.Brigades, docstore.Filter{Size: size})
	if err != nil {
		return nil, err
	}
	out := []domain.Brigade{}
	for _, d := range docs {
		var b domain.Brigade
		if err := json.Unmarshal(d.Doc, &b); err != nil {
			return nil, err
		}
		if name != "" && !strings.Contains(strings.ToLower(b.BrigadeName), strings.ToLower(name)) {
			continue
		}
		if memberID != "" && !hasMember(b, memberID) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func hasMember(b domain.Brigade, memberID string) bool {
	for _, m := range b.Members {
		if m.UserID == memberID {
			return true
		}
	}
	return false
}

// EnsureOnSubtaskPayload rewrites a subtask payload carrying an assignees
// list into a crew assignment: the list is replaced with the crew id and a
// membership snapshot. Payloads without assignees pass through unchanged.
func (s Service) EnsureOnSubtaskPayload(ctx context.Context, payload map[string]any, createdBy string) (map[string]any, error) {
	raw, ok := payload[assigneesField]
	if !ok {
		return payload, nil
	}
	members := memberIDs(raw)
	if len(members) == 0 {
		delete(payload, assigneesField)
		return payload, nil
	}
	b, err := s.CreateOrGetByMembers(ctx, members, "", createdBy)
	if err != nil {
		return nil, err
	}
	snap, err := toPlain(Snapshot(b.BrigadeName, members))
	if err != nil {
		return nil, err
	}
	delete(payload, assigneesField)
	payload[idField] = b.BrigadeID
	payload[snapshotField] = snap
	return payload, nil
}

func memberIDs(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	members := make([]string, 0, len(list))
	for _, v := range list {
		if id, ok := v.(string); ok && id != "" {
			members = append(members, id)
		}
	}
	return members
}

// toPlain converts a typed value into the generic map form used by
// structural path writes.
func toPlain(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
