package domain

import "time"

// Position はグリッド上の座標です。
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Environment はワールド全体のスカラー形質です。
type Environment struct {
	Nutrients   float64 `json:"nutrients"`
	Acidity     float64 `json:"acidity"`
	Temperature float64 `json:"temperature"`
}

// ActorView はクライアントへ送るアクターの状態です。
type ActorView struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Bot        bool               `json:"bot"`
	Position   *Position          `json:"position,omitempty"`
	Health     int                `json:"health,omitempty"`
	MaxHealth  int                `json:"maxHealth,omitempty"`
	Biomass    int                `json:"biomass"`
	Energy     float64            `json:"energy"`
	Population int                `json:"population"`
	Mutations  []string           `json:"mutations"`
	Traits     map[string]float64 `json:"traits"`
	CreatedAt  time.Time          `json:"created_at"`
}

// WorldSnapshot はある時点のワールド全体の状態です。/api/state もこの形をそのまま返します。
type WorldSnapshot struct {
	// Seq はコミット順の通し番号で、配信順序の判定にのみ使います。
	Seq uint64 `json:"-"`

	Tick            uint64         `json:"tick"`
	Players         int            `json:"players"`
	Bots            int            `json:"bots"`
	GlobalMutations map[string]int `json:"global_mutations"`
	GlobalBiomass   int            `json:"global_biomass"`
	GlobalTraits    Environment    `json:"globalTraits"`
	Width           int            `json:"width,omitempty"`
	Height          int            `json:"height,omitempty"`
	Actors          []ActorView    `json:"actors"`
}

// Actor は id のアクターを探します。
func (w WorldSnapshot) Actor(id string) (ActorView, bool) {
	for _, a := range w.Actors {
		if a.ID == id {
			return a, true
		}
	}
	return ActorView{}, false
}
