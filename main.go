package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"arenagame/client"
	"arenagame/protocol"
	"arenagame/replay"
	"arenagame/server"
	"arenagame/utils"
	"arenagame/world"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Llongfile)

	if len(os.Args) > 1 && os.Args[1] == "server" {
		if err := server.Run(os.Args[1:]); err != nil {
			log.Fatal(err)
		}
		return
	}
	if len(os.Args) > 2 && os.Args[1] == "replay" {
		if err := printReplay(os.Args[2]); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := utils.LoadConfig("config.toml")
	if err != nil {
		log.Fatal(err)
	}
	username := "player"
	if len(os.Args) > 2 && os.Args[1] == "client" {
		username = os.Args[2]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	conn, err := dial(ctx, cfg)
	if err != nil {
		log.Printf("Encountered err: %v. Trying to spin up server manually", err)

		// Try to spin up the server if we fail to connect.
		go func() {
			if err := server.Run([]string{"server"}); err != nil {
				log.Fatal(err)
			}
			log.Fatal("server shutdown")
		}()

		// TODO: Poll the /status endpoint instead of sleeping.
		time.Sleep(200 * time.Millisecond)
		conn, err = dial(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
	}

	gameMap := world.DefaultMap()
	if cfg.Sim.Map != "" {
		if gameMap, err = world.LoadMapFile(cfg.Sim.Map); err != nil {
			log.Fatal(err)
		}
	}

	game := client.NewGame(cfg, conn)
	defer game.Close()
	bot := client.NewBot(username, 1, gameMap)
	bot.Start(game)
	if err := game.Run(ctx, bot.Frame); err != nil {
		log.Fatal(err)
	}
}

func dial(ctx context.Context, cfg *utils.Config) (*protocol.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	connCfg := protocol.DefaultConnConfig()
	if cfg.Client.WebsocketURL != "" {
		return client.DialWebsocket(dialCtx, cfg.Client.WebsocketURL, connCfg)
	}
	return client.Dial(dialCtx, cfg.Client.ServerAddr, connCfg)
}

// printReplay lists the header of a recorded match and one line per tick.
func printReplay(path string) error {
	r, err := replay.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	fmt.Printf("match %s on %q, started %s, tick %vs\n", h.MatchID, h.Map, h.Started.Format(time.RFC3339), h.TickDelta)
	for _, p := range h.Roster {
		fmt.Printf("  team %d: %s (champion %d, entity %d)\n", p.Team, p.Username, p.Champion, p.EntityID)
	}
	for {
		snap, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("tick %d: %d entities\n", snap.Tick, len(snap.Entities))
	}
}
