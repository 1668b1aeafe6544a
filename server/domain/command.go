package domain

// Variant はワールドの種類です。
type Variant uint8

const (
	// VariantGrid はグリッド上の移動と戦闘、ボットを持つワールドです。
	VariantGrid Variant = iota
	// VariantColony は位置を持たず、エネルギーと個体数を毎tick計算するワールドです。
	VariantColony
)

func (v Variant) String() string {
	switch v {
	case VariantGrid:
		return "grid"
	case VariantColony:
		return "colony"
	default:
		return "unknown"
	}
}

// ParseVariant は設定文字列からワールド種別を得ます。
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "grid", "":
		return VariantGrid, true
	case "colony":
		return VariantColony, true
	default:
		return VariantGrid, false
	}
}

// Direction は移動方向です。
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionUp
	DirectionDown
	DirectionLeft
	DirectionRight
)

// ParseDirection は方向トークンを解釈します。未知のトークンは DirectionNone（移動なし）です。
func ParseDirection(s string) Direction {
	switch s {
	case "up":
		return DirectionUp
	case "down":
		return DirectionDown
	case "left":
		return DirectionLeft
	case "right":
		return DirectionRight
	default:
		return DirectionNone
	}
}

// Vector は方向の単位ベクトルを返します。y は下向きが正です。
func (d Direction) Vector() (dx, dy int) {
	switch d {
	case DirectionUp:
		return 0, -1
	case DirectionDown:
		return 0, 1
	case DirectionLeft:
		return -1, 0
	case DirectionRight:
		return 1, 0
	default:
		return 0, 0
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "none"
	}
}

// Directions は全ての有効な方向です。
var Directions = [...]Direction{DirectionUp, DirectionDown, DirectionLeft, DirectionRight}

// Command はワールドへのコマンドです。実装はこのパッケージ内の型に閉じています。
type Command interface {
	Name() string
	isCommand()
}

// JoinCommand はアクターの参加です。RequestedID が空いていれば再利用します。
type JoinCommand struct {
	RequestedID string
	Bot         bool
}

// LeaveCommand はアクターの離脱です。
type LeaveCommand struct {
	ActorID string
}

// MutateCommand は変異の獲得です。
type MutateCommand struct {
	ActorID    string
	MutationID string
}

// MoveCommand はグリッド上の1マス移動です。
type MoveCommand struct {
	ActorID   string
	Direction Direction
}

// AttackCommand は周囲8マスへの攻撃です。
type AttackCommand struct {
	ActorID string
}

func (JoinCommand) Name() string   { return "join" }
func (LeaveCommand) Name() string  { return "leave" }
func (MutateCommand) Name() string { return "mutate" }
func (MoveCommand) Name() string   { return "move" }
func (AttackCommand) Name() string { return "attack" }

func (JoinCommand) isCommand()   {}
func (LeaveCommand) isCommand()  {}
func (MutateCommand) isCommand() {}
func (MoveCommand) isCommand()   {}
func (AttackCommand) isCommand() {}
