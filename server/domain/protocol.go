package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 受信メッセージの種別
const (
	MessageConnect         = "connect"
	MessageJoin            = "join"
	MessageDisconnect      = "disconnect"
	MessageLeave           = "leave"
	MessageMutate          = "mutate"
	MessageEvolutionSelect = "evolution:select"
	MessageMove            = "move"
	MessageAttack          = "attack"
)

// 送信メッセージの種別
const (
	MessageWorldUpdate = "world:update"
	MessageSessionInit = "session:init"
)

var (
	// ErrMalformedCommand は必須フィールドの欠落や JSON の破損を表します。
	ErrMalformedCommand = errors.New("protocol: malformed command")
	// ErrUnknownCommand は未知のコマンド名を表します。
	ErrUnknownCommand = errors.New("protocol: unknown command")
	// ErrForeignActor は他アクターを名乗るコマンドを表します。
	ErrForeignActor = errors.New("protocol: command names another actor")
	// ErrImplicitCommand は接続時に暗黙に処理済みのコマンドを表します。
	ErrImplicitCommand = errors.New("protocol: command is implicit on connect")
)

// inboundEnvelope は {"player": id, ...fields} 形式と {"type": name, "payload": {...}} 形式の両方を受けます。
type inboundEnvelope struct {
	Type      string          `json:"type"`
	Player    string          `json:"player"`
	Payload   json.RawMessage `json:"payload"`
	Mutation  string          `json:"mutation"`
	Direction string          `json:"direction"`
	ID        string          `json:"id"`
}

type inboundPayload struct {
	ID        string `json:"id"`
	Mutation  string `json:"mutation"`
	Direction string `json:"direction"`
}

// DecodeCommand は actorID のセッションから届いたフレームをコマンドに変換します。
// 返るエラーはいずれも「コマンドを黙って捨てる」べき入力を表します。
func DecodeCommand(actorID string, data []byte) (Command, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if env.Player != "" && env.Player != actorID {
		return nil, fmt.Errorf("%w: %s", ErrForeignActor, env.Player)
	}

	var payload inboundPayload
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrMalformedCommand, err)
		}
	}
	mutation := firstNonEmpty(payload.ID, payload.Mutation, env.Mutation, env.ID)
	direction := firstNonEmpty(payload.Direction, env.Direction)

	switch env.Type {
	case "":
		// {"player": id, "mutation": m} 形式
		switch {
		case env.Mutation != "":
			return MutateCommand{ActorID: actorID, MutationID: env.Mutation}, nil
		case env.Direction != "":
			return MoveCommand{ActorID: actorID, Direction: ParseDirection(env.Direction)}, nil
		default:
			return nil, fmt.Errorf("%w: no command type", ErrMalformedCommand)
		}
	case MessageMutate, MessageEvolutionSelect:
		if mutation == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformedCommand, env.Type)
		}
		return MutateCommand{ActorID: actorID, MutationID: mutation}, nil
	case MessageMove:
		return MoveCommand{ActorID: actorID, Direction: ParseDirection(direction)}, nil
	case MessageAttack:
		return AttackCommand{ActorID: actorID}, nil
	case MessageDisconnect, MessageLeave:
		return LeaveCommand{ActorID: actorID}, nil
	case MessageConnect, MessageJoin:
		return nil, ErrImplicitCommand
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, env.Type)
	}
}

// EncodeCommand はクライアント側のフレームを組み立てます。
func EncodeCommand(cmd Command) ([]byte, error) {
	type outbound struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload,omitempty"`
	}
	switch c := cmd.(type) {
	case MutateCommand:
		return json.Marshal(outbound{Type: MessageMutate, Payload: map[string]any{"id": c.MutationID}})
	case MoveCommand:
		return json.Marshal(outbound{Type: MessageMove, Payload: map[string]any{"direction": c.Direction.String()}})
	case AttackCommand:
		return json.Marshal(outbound{Type: MessageAttack})
	case LeaveCommand:
		return json.Marshal(outbound{Type: MessageDisconnect})
	case JoinCommand:
		return json.Marshal(outbound{Type: MessageConnect})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// gridUpdate は {"player": {...}, "world": {...}} 形式です。
type gridUpdate struct {
	Session *sessionRef    `json:"session,omitempty"`
	Player  *ActorView     `json:"player,omitempty"`
	World   WorldSnapshot  `json:"world"`
	Tree    json.Marshaler `json:"evolutionTree,omitempty"`
}

type sessionRef struct {
	Player string `json:"player"`
}

// typedEnvelope は {"type": name, "payload": {...}} 形式です。
type typedEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type sessionInitPayload struct {
	ID            string         `json:"id"`
	EvolutionTree json.Marshaler `json:"evolutionTree"`
	World         WorldSnapshot  `json:"world"`
}

// EncodeUpdate はワールド更新フレームを作ります。player は変更を起こしたアクターで、nil でも構いません。
func EncodeUpdate(variant Variant, player *ActorView, world WorldSnapshot) ([]byte, error) {
	if variant == VariantColony {
		return json.Marshal(typedEnvelope{Type: MessageWorldUpdate, Payload: world})
	}
	return json.Marshal(gridUpdate{Player: player, World: world})
}

// EncodeSessionInit は接続直後に1度だけ送るフレームを作ります。
func EncodeSessionInit(variant Variant, actorID string, player *ActorView, world WorldSnapshot, tree json.Marshaler) ([]byte, error) {
	if variant == VariantColony {
		return json.Marshal(typedEnvelope{
			Type: MessageSessionInit,
			Payload: sessionInitPayload{
				ID:            actorID,
				EvolutionTree: tree,
				World:         world,
			},
		})
	}
	return json.Marshal(gridUpdate{
		Session: &sessionRef{Player: actorID},
		Player:  player,
		World:   world,
		Tree:    tree,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
