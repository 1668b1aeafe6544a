package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/DSMD-D/primor/server/domain"
	"github.com/DSMD-D/primor/server/evolution"
	"github.com/DSMD-D/primor/utils"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := utils.GetEnvDefault("ADDR", "localhost")
	port := utils.GetEnvDefault("PORT", "5000")
	clientCount := utils.GetEnvInt("CLIENT_COUNT", 3)
	interval := utils.GetEnvDuration("CLIENT_INTERVAL", 500*time.Millisecond)

	serverURL := fmt.Sprintf("ws://%s:%s/ws", addr, port)
	slog.Info("starting load clients", "count", clientCount, "server", serverURL)

	var wg sync.WaitGroup
	for i := range clientCount {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runClient(ctx, serverURL, id, interval)
		}(i)
	}

	wg.Wait()
	slog.Info("all clients stopped")
}

func runClient(ctx context.Context, serverURL string, id int, interval time.Duration) {
	logger := slog.With("clientID", id)

	for {
		if ctx.Err() != nil {
			return
		}
		err := clientSession(ctx, serverURL, interval, logger)
		if err != nil && ctx.Err() == nil {
			logger.Warn("client session ended, reconnecting", "err", err)
			time.Sleep(2 * time.Second)
		}
	}
}

// initFrame はグリッドとコロニー両方の初期フレームから必要な部分だけを取り出します。
type initFrame struct {
	Session *struct {
		Player string `json:"player"`
	} `json:"session"`
	EvolutionTree map[string]*evolution.Node `json:"evolutionTree"`

	Type    string `json:"type"`
	Payload *struct {
		ID            string                     `json:"id"`
		EvolutionTree map[string]*evolution.Node `json:"evolutionTree"`
	} `json:"payload"`
}

func clientSession(ctx context.Context, serverURL string, interval time.Duration, logger *slog.Logger) error {
	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("read init: %w", err)
	}
	var frame initFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("decode init: %w", err)
	}
	actorID, mutations := parseInit(frame)
	logger = logger.With("actorID", actorID)
	logger.Info("connected", "mutations", len(mutations))

	// 更新フレームは読み捨てる。pong の処理にも読み込みが必要
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "shutdown")
			return nil
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case <-ticker.C:
			msg, err := domain.EncodeCommand(randomCommand(actorID, mutations))
			if err != nil {
				return err
			}
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func parseInit(frame initFrame) (string, []string) {
	tree := frame.EvolutionTree
	actorID := ""
	if frame.Session != nil {
		actorID = frame.Session.Player
	}
	if frame.Payload != nil {
		actorID = frame.Payload.ID
		tree = frame.Payload.EvolutionTree
	}
	var ids []string
	var walk func(nodes map[string]*evolution.Node)
	walk = func(nodes map[string]*evolution.Node) {
		for id, node := range nodes {
			ids = append(ids, id)
			if node != nil {
				walk(node.Children)
			}
		}
	}
	walk(tree)
	return actorID, ids
}

func randomCommand(actorID string, mutations []string) domain.Command {
	switch n := rand.IntN(10); {
	case n < 6:
		return domain.MoveCommand{ActorID: actorID, Direction: domain.Directions[rand.IntN(len(domain.Directions))]}
	case n < 9 || len(mutations) == 0:
		return domain.AttackCommand{ActorID: actorID}
	default:
		return domain.MutateCommand{ActorID: actorID, MutationID: mutations[rand.IntN(len(mutations))]}
	}
}
