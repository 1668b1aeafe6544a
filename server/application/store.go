package application

// EntityStore はアクターIDからアクターへの対応を保持する唯一の場所です。
// ロックは行いません。呼び出し側がワールドロックを保持している必要があります。
type EntityStore struct {
	actors map[string]*Actor
	order  []string
}

// NewEntityStore は空のストアを生成します。
func NewEntityStore() *EntityStore {
	return &EntityStore{
		actors: make(map[string]*Actor),
	}
}

// Get は id のアクターを返します。
func (s *EntityStore) Get(id string) (*Actor, bool) {
	a, ok := s.actors[id]
	return a, ok
}

// Contains は id が使用中かどうかを返します。
func (s *EntityStore) Contains(id string) bool {
	_, ok := s.actors[id]
	return ok
}

// Upsert はアクターを登録または置き換えます。新規登録は挿入順の末尾に並びます。
func (s *EntityStore) Upsert(a *Actor) {
	if _, exists := s.actors[a.ID]; !exists {
		s.order = append(s.order, a.ID)
	}
	s.actors[a.ID] = a
}

// Remove は id のアクターを取り除いて返します。
func (s *EntityStore) Remove(id string) (*Actor, bool) {
	a, ok := s.actors[id]
	if !ok {
		return nil, false
	}
	delete(s.actors, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return a, true
}

// SnapshotAll は全アクターを挿入順で返します。返るスライスは新しく確保されたものです。
func (s *EntityStore) SnapshotAll() []*Actor {
	out := make([]*Actor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.actors[id])
	}
	return out
}

// Len は登録数を返します。
func (s *EntityStore) Len() int {
	return len(s.actors)
}
