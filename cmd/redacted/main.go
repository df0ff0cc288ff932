package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"redacted/internal/app"
	"redacted/internal/assignment"
	"redacted/internal/config"
	"redacted/internal/db"
	"redacted/internal/game"
	"redacted/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "redacted",
	Short: "Redacted party game",
	Long: `Redacted is a party game for four or more players.
Core concepts:
- Game: a session with a fixed number of entries per story. Players join, then anyone starts it.
- Story: every player opens one. It travels around the table one seat at a time.
- Censor: the next player blacks out one to three words of the latest entry.
- Repair: the player after that fills the gaps with their own words.
- Continue: whoever receives a repaired story writes the next entry.
- Reading: once every story is full, everyone reads the finished tales.
- History: every successful move is recorded; view it with 'redacted log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("memory") {
			return nil
		}
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REDACTED")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "log every game operation")
	rootCmd.PersistentFlags().String("player", "", "player id acting in game and story commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("player", rootCmd.PersistentFlags().Lookup("player"))
}

func registerCommands() {
	rootCmd.AddCommand(gameCmd())
	rootCmd.AddCommand(storyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func gameCmd() *cobra.Command {
	g := &cobra.Command{Use: "game", Short: "Manage games"}
	g.AddCommand(gameCreateCmd())
	g.AddCommand(gameListCmd())
	g.AddCommand(gameShowCmd())
	g.AddCommand(gameJoinCmd())
	g.AddCommand(gameStartCmd())
	g.AddCommand(gameStoriesCmd())
	return g
}

func gameCreateCmd() *cobra.Command {
	var entries int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				summary, err := a.Engine.CreateGame(ctx, entries)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				fmt.Printf("Created game %s (%d entries per story)\n", summary.ID, summary.EntriesPerStory)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&entries, "entries", 0, "entries per story (defaults to config)")
	return cmd
}

func gameListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.ListGames(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Entries", "Records", "Created", "Updated"})
				for _, g := range items {
					tw.AppendRow(table.Row{g.ID, g.EntriesPerStory, g.Records, g.CreatedAt, g.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func gameShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <game-id>",
		Short: "Show a game and every player's assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				summary, err := a.Engine.Summary(ctx, args[0])
				if err != nil {
					return err
				}
				assignments, err := a.Engine.PlayerAssignments(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					out := map[string]any{"game": summary, "assignments": encodeAssignments(assignments)}
					return printJSON(out)
				}
				fmt.Printf("Game: %s (started: %t, ended: %t)\n", summary.ID, summary.HasStarted, summary.HasEnded)
				fmt.Printf("Entries per story: %d, stories: %d, records: %d\n", summary.EntriesPerStory, summary.StoryCount, summary.Records)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Player", "Assignment", "Story"})
				for _, pa := range assignments {
					story := ""
					if idx, ok := assignment.StoryIndex(pa.Assignment); ok {
						story = strconv.Itoa(idx)
					}
					tw.AppendRow(table.Row{pa.PlayerID, pa.Assignment.Kind(), story})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func gameJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <game-id>",
		Short: "Join a game as --player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			playerID, err := requirePlayer()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				joined, err := a.Engine.JoinGame(ctx, args[0], playerID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(joined)
				}
				fmt.Printf("%s joined %s (%d players, started: %t)\n", playerID, joined.GameID, joined.NumberOfPlayers, joined.HasStarted)
				return nil
			})
		},
	}
	return cmd
}

func gameStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <game-id>",
		Short: "Start a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Engine.StartGame(ctx, args[0]); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"game_id": args[0], "started": true})
				}
				fmt.Printf("Game %s started\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func gameStoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stories <game-id>",
		Short: "Print the finished stories of an ended game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				stories, err := a.Engine.Stories(ctx, args[0])
				if err != nil {
					return err
				}
				type entry struct {
					Content      string   `json:"content"`
					Contributors []string `json:"contributors"`
				}
				out := make([][]entry, 0, len(stories))
				for _, story := range stories {
					entries := []entry{}
					for _, e := range story.Entries() {
						content := e.InitialContent
						if e.RepairedContent != nil {
							content = *e.RepairedContent
						}
						entries = append(entries, entry{Content: content, Contributors: e.Contributors})
					}
					out = append(out, entries)
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				for i, story := range out {
					fmt.Printf("Story %d\n", i)
					for _, e := range story {
						fmt.Printf("  %s  [%s]\n", e.Content, strings.Join(e.Contributors, ", "))
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func storyCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "story",
		Short: "Play story moves as --player",
		Long:  "Story moves act on the player's current assignment. Indices refer to the story's position in the game.",
	}
	s.AddCommand(storyStartCmd())
	s.AddCommand(storyCensorCmd())
	s.AddCommand(storyRepairCmd())
	s.AddCommand(storyContinueCmd())
	return s
}

func storyStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <game-id> <content>",
		Short: "Write the opening entry of your story",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return playMove(cmd.Context(), func(ctx context.Context, a *app.Context, playerID string) (assignment.Assignment, error) {
				return a.Engine.StartStory(ctx, args[0], playerID, args[1])
			})
		},
	}
	return cmd
}

func storyCensorCmd() *cobra.Command {
	var indices []int
	cmd := &cobra.Command{
		Use:   "censor <game-id> <story-index>",
		Short: "Censor words of the latest entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyIndex, err := parseStoryIndex(args[1])
			if err != nil {
				return err
			}
			return playMove(cmd.Context(), func(ctx context.Context, a *app.Context, playerID string) (assignment.Assignment, error) {
				return a.Engine.CensorStory(ctx, args[0], playerID, storyIndex, indices)
			})
		},
	}
	cmd.Flags().IntSliceVar(&indices, "word", nil, "word index to censor (repeatable, 1 to 3)")
	return cmd
}

func storyRepairCmd() *cobra.Command {
	var replacements []string
	cmd := &cobra.Command{
		Use:   "repair <game-id> <story-index>",
		Short: "Fill the censored gaps",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyIndex, err := parseStoryIndex(args[1])
			if err != nil {
				return err
			}
			return playMove(cmd.Context(), func(ctx context.Context, a *app.Context, playerID string) (assignment.Assignment, error) {
				return a.Engine.RepairCensoredStory(ctx, args[0], playerID, storyIndex, replacements)
			})
		},
	}
	cmd.Flags().StringArrayVar(&replacements, "replacement", nil, "replacement text, one per censored range in order")
	return cmd
}

func storyContinueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "continue <game-id> <story-index> <content>",
		Short: "Write the next entry of a repaired story",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyIndex, err := parseStoryIndex(args[1])
			if err != nil {
				return err
			}
			return playMove(cmd.Context(), func(ctx context.Context, a *app.Context, playerID string) (assignment.Assignment, error) {
				return a.Engine.ContinueStory(ctx, args[0], playerID, storyIndex, args[2])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect game history"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var gameID, recordType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail history records of a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(gameID) == "" {
				return fmt.Errorf("--game is required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				h, err := a.Engine.History(ctx, gameID)
				if err != nil {
					return err
				}
				type row struct {
					Seq     int             `json:"seq"`
					Type    string          `json:"type"`
					Payload json.RawMessage `json:"payload"`
				}
				rows := []row{}
				for i, rec := range h.Records {
					if recordType != "" && string(rec.Type()) != recordType {
						continue
					}
					payload, err := game.EncodeRecord(rec)
					if err != nil {
						return err
					}
					rows = append(rows, row{Seq: i + 1, Type: string(rec.Type()), Payload: payload})
				}
				if n > 0 && len(rows) > n {
					rows = rows[len(rows)-n:]
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "Type", "Payload"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.Seq, r.Type, string(r.Payload)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of records")
	cmd.Flags().StringVar(&gameID, "game", "", "game id")
	cmd.Flags().StringVar(&recordType, "type", "", "record type filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is read from redacted.yml in the workspace. A missing file means built-in defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default redacted.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, publicURL string
	var inMemory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("REDACTED_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("REDACTED_JWT_SECRET is required for bearer auth")
			}
			logger := log.New(os.Stderr, "redacted ", log.LstdFlags)
			a, err := app.Open(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				InMemory:  inMemory,
				Logger:    logger,
				Verbose:   viper.GetBool("verbose"),
			})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Config.Validate(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
				addr = a.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
				basePath = a.Config.Server.BasePath
			}
			if publicURL == "" {
				publicURL = a.Config.Server.PublicURL
			}
			handler, err := server.New(server.Config{
				Engine:    a.Engine,
				BasePath:  basePath,
				PublicURL: publicURL,
				Auth:      server.AuthConfig{JWTSecret: secret, Sessions: a.Sessions, Logger: logger},
				Logger:    logger,
				Verbose:   viper.GetBool("verbose"),
			})
			if err != nil {
				return err
			}
			hooks := server.StartWebhooks(a.Bus, a.Config.Webhooks, logger)
			defer hooks.Stop()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Redacted API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", config.DefaultBasePath, "API base path")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "origin used in join links and QR codes")
	cmd.Flags().BoolVar(&inMemory, "memory", false, "keep games in memory instead of the workspace database")
	_ = viper.BindPFlag("memory", cmd.Flags().Lookup("memory"))
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	logger := log.New(os.Stderr, "redacted ", log.LstdFlags)
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Logger:    logger,
		Verbose:   viper.GetBool("verbose"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requirePlayer() (string, error) {
	playerID := strings.TrimSpace(viper.GetString("player"))
	if playerID == "" {
		return "", fmt.Errorf("--player (or REDACTED_PLAYER) is required")
	}
	return playerID, nil
}

func parseStoryIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid story index %q", s)
	}
	return idx, nil
}

func playMove(ctx context.Context, move func(context.Context, *app.Context, string) (assignment.Assignment, error)) error {
	playerID, err := requirePlayer()
	if err != nil {
		return err
	}
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		next, err := move(ctx, a, playerID)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(assignment.Encode(next))
		}
		fmt.Printf("Next assignment for %s: %s\n", playerID, describe(next))
		return nil
	})
}

func describe(a assignment.Assignment) string {
	w := assignment.Encode(a)
	var b strings.Builder
	b.WriteString(string(w.Type))
	if w.StoryIndex != nil {
		fmt.Fprintf(&b, " (story %d)", *w.StoryIndex)
	}
	if w.Content != nil {
		fmt.Fprintf(&b, ": %s", *w.Content)
	}
	return b.String()
}

func encodeAssignments(items []game.PlayerAssignment) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, pa := range items {
		out = append(out, map[string]any{"player_id": pa.PlayerID, "assignment": assignment.Encode(pa.Assignment)})
	}
	return out
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
