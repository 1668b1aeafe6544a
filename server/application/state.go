package application

import (
	"maps"

	"github.com/DSMD-D/primor/server/domain"
)

// worldState はワールドロックで保護される共有状態の全てです。
type worldState struct {
	store *EntityStore
	tick  uint64
	env   domain.Environment

	// globalMutations は獲得された変異の累計で、減ることはありません。
	globalMutations map[string]int
	globalBiomass   int

	botsSpawned bool
}

func newWorldState() *worldState {
	return &worldState{
		store:           NewEntityStore(),
		env:             InitialEnvironment(),
		globalMutations: make(map[string]int),
	}
}

func (st *worldState) addBiomass(delta int) {
	st.globalBiomass = max(0, st.globalBiomass+delta)
}

// snapshot は現時点の状態を深いコピーで取り出します。
func (st *worldState) snapshot(seq uint64, width, height int) domain.WorldSnapshot {
	actors := st.store.SnapshotAll()
	snap := domain.WorldSnapshot{
		Seq:             seq,
		Tick:            st.tick,
		GlobalMutations: maps.Clone(st.globalMutations),
		GlobalBiomass:   st.globalBiomass,
		GlobalTraits:    st.env,
		Width:           width,
		Height:          height,
		Actors:          make([]domain.ActorView, 0, len(actors)),
	}
	for _, a := range actors {
		if a.IsBot() {
			snap.Bots++
		} else {
			snap.Players++
		}
		snap.Actors = append(snap.Actors, a.View())
	}
	return snap
}
