package application

import (
	"math"

	"github.com/DSMD-D/primor/server/domain"
)

// コロニーのエネルギー収支の閾値
const (
	surplusEnergy = 100.0
	surplusCost   = 30.0
	deficitEnergy = 5.0
	deficitRelief = 10.0
)

// InitialEnvironment は起動時の環境値です。グリッドではこの値のまま変わりません。
func InitialEnvironment() domain.Environment {
	return domain.Environment{
		Nutrients:   50,
		Acidity:     0,
		Temperature: 20,
	}
}

// EnvironmentAt は tick における環境値を返します。tick のみに依存する純粋関数です。
func EnvironmentAt(tick uint64) domain.Environment {
	t := float64(tick)
	return domain.Environment{
		Nutrients:   math.Max(10, 60+15*math.Sin(t/10)),
		Acidity:     math.Max(0, 10+4*math.Cos(t/12)),
		Temperature: InitialEnvironment().Temperature,
	}
}

// Simulator は1tick分のワールド更新を計算します。
type Simulator struct {
	variant domain.Variant
}

// NewSimulator はワールド種別に応じたシミュレータを生成します。
func NewSimulator(variant domain.Variant) *Simulator {
	return &Simulator{variant: variant}
}

// Step は tick を1進め、環境とアクターを更新します。ワールドロックを保持して呼びます。
// クライアントへ配信すべき変化があれば true を返します。
func (s *Simulator) Step(st *worldState) bool {
	st.tick++
	if s.variant != domain.VariantColony {
		return false
	}
	st.env = EnvironmentAt(st.tick)
	for _, a := range st.store.SnapshotAll() {
		accountEnergy(a, st.env)
	}
	return true
}

// accountEnergy はコロニー1つ分のエネルギーと個体数を更新します。
func accountEnergy(a *Actor, env domain.Environment) {
	growthBoost := a.Traits[TraitGrowth] + a.Traits[TraitSpeed]
	survivalPenalty := math.Max(0, env.Acidity-a.Traits[TraitDefense])
	nutrientBonus := env.Nutrients / 10

	a.Energy = math.Max(0, a.Energy+growthBoost+nutrientBonus-survivalPenalty)
	if a.Energy > surplusEnergy {
		a.Population++
		a.Energy -= surplusCost
	}
	if a.Energy < deficitEnergy {
		a.Population = max(1, a.Population-1)
		a.Energy += deficitRelief
	}
}
