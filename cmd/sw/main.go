package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitework/internal/app"
	"sitework/internal/auth"
	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/repo"
	"sitework/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sw",
	Short: "Sitework CLI",
	Long: `Sitework tracks construction work as mutable project documents.
Each project document nests stages, work kinds, work types, tasks and
subtasks. Foremen start and stop shifts, which append time intervals to the
selected tasks; status and history are derived from those interval logs.
Managers see every project; report links and arbitrary field patches are
applied by structural path with optimistic concurrency.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
	viper.SetEnvPrefix("SW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(shiftCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(brigadeCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write default sitework.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage project documents"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectSetFieldCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, foremanID, foremanEmail string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					ProjectID:    id,
					ProjectName:  name,
					ForemanID:    foremanID,
					ForemanEmail: foremanEmail,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&foremanID, "foreman-id", "", "owning foreman id")
	cmd.Flags().StringVar(&foremanEmail, "foreman-email", "", "owning foreman email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var foremanID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, foremanID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ProjectID, p.ProjectName})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&foremanID, "foreman-id", "", "filter by foreman")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project document",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			if target == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectSetFieldCmd() *cobra.Command {
	var fieldPath, rawValue string
	cmd := &cobra.Command{
		Use:   "set-field",
		Short: "Set a document field by dot path",
		Long: `Writes a value at a dot-separated path inside the project document,
creating missing containers. All-digit segments address list positions.
The value is parsed as JSON; values that do not parse are written as
strings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := viper.GetString("project")
			if target == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var value any
				if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
					value = rawValue
				}
				res, err := e.SetField(ctx, target, fieldPath, value, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&fieldPath, "path", "", "dot-separated field path")
	cmd.Flags().StringVar(&rawValue, "value", "", "value (JSON or plain string)")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func shiftCmd() *cobra.Command {
	shift := &cobra.Command{Use: "shift", Short: "Start, stop and inspect shifts"}
	shift.AddCommand(shiftStartCmd())
	shift.AddCommand(shiftStopCmd())
	shift.AddCommand(shiftStatusCmd())
	shift.AddCommand(shiftHistoryCmd())
	return shift
}

func shiftScope() engine.Scope {
	return engine.Scope{
		ForemanID: viper.GetString("actor-id"),
		ProjectID: viper.GetString("project"),
	}
}

func shiftStartCmd() *cobra.Command {
	var taskIDs, subtaskIDs []string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start shift on selected tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.StartShift(ctx, shiftScope(), taskIDs, subtaskIDs); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"result": "ok"})
			})
		},
	}
	cmd.Flags().StringSliceVar(&taskIDs, "task", nil, "task id (repeatable)")
	cmd.Flags().StringSliceVar(&subtaskIDs, "subtask", nil, "subtask id (repeatable)")
	return cmd
}

func shiftStopCmd() *cobra.Command {
	var taskIDs, subtaskIDs []string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop shift on selected tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.StopShift(ctx, shiftScope(), taskIDs, subtaskIDs); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"result": "ok"})
			})
		},
	}
	cmd.Flags().StringSliceVar(&taskIDs, "task", nil, "task id (repeatable)")
	cmd.Flags().StringSliceVar(&subtaskIDs, "subtask", nil, "subtask id (repeatable)")
	return cmd
}

func shiftStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Current shift status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				status, err := e.ShiftStatus(ctx, shiftScope())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"status": status})
			})
		},
	}
	return cmd
}

func shiftHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Flattened shift history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.ShiftHistory(ctx, shiftScope())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Type", "Project", "Task", "Subtask", "Start", "End", "Status"})
				for _, en := range entries {
					end := ""
					if en.EndTime != nil {
						end = *en.EndTime
					}
					tw.AppendRow(table.Row{en.Type, en.ProjectName, en.TaskName, en.SubtaskName, en.StartTime, end, en.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Attach report links"}
	report.AddCommand(reportAttachCmd())
	return report
}

func reportAttachCmd() *cobra.Command {
	var target engine.ReportTarget
	var title, href string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach a report link to a subtask",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := viper.GetString("project")
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AttachReportLinks(ctx, projectID, target,
					[]domain.ReportLink{{Title: title, Href: href}}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&target.StageID, "stage", "", "stage id")
	cmd.Flags().StringVar(&target.WorkKindID, "work-kind", "", "work kind id")
	cmd.Flags().StringVar(&target.WorkTypeID, "work-type", "", "work type id")
	cmd.Flags().StringVar(&target.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&target.SubtaskID, "subtask", "", "subtask id")
	cmd.Flags().StringVar(&title, "title", "", "link title")
	cmd.Flags().StringVar(&href, "href", "", "link URL")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("work-type")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("subtask")
	_ = cmd.MarkFlagRequired("href")
	return cmd
}

func brigadeCmd() *cobra.Command {
	brig := &cobra.Command{Use: "brigade", Short: "Manage work crews"}
	brig.AddCommand(brigadeCreateCmd())
	brig.AddCommand(brigadeShowCmd())
	brig.AddCommand(brigadeSearchCmd())
	return brig
}

func brigadeCreateCmd() *cobra.Command {
	var name string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or resolve a brigade by members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.Brigades.CreateOrGetByMembers(ctx, members, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "brigade name")
	cmd.Flags().StringSliceVar(&members, "member", nil, "member user id (repeatable)")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func brigadeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <brigade-id>",
		Short: "Show a brigade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.Brigades.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func brigadeSearchCmd() *cobra.Command {
	var name, member string
	var size int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search brigades by name or member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Brigades.Search(ctx, name, member, size)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name substring")
	cmd.Flags().StringVar(&member, "member", "", "member user id")
	cmd.Flags().IntVar(&size, "size", 0, "result limit")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userSetActiveCmd())
	user.AddCommand(userAssignCmd())
	user.AddCommand(userRevokeCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var email, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				// Registration only touches the user table; no Redis needed.
				svc := authServiceOffline(env.Repo)
				u, err := svc.Register(ctx, email, password, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&role, "role", domain.RoleUser, "role (user, manager, root)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				users, err := env.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Role", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Role, u.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userSetActiveCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "set-active <user-id>",
		Short: "Enable or disable an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				return env.Repo.SetUserActive(ctx, args[0], active)
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func userAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign-project <user-id> <project-id>",
		Short: "Grant a user access to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				return env.Repo.AssignProject(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func userRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke-project <user-id> <project-id>",
		Short: "Revoke a user's project access",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				return env.Repo.RevokeProject(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				fmt.Println("database up to date")
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer env.Close()
			authSvc, err := env.AuthService(cmd.Context())
			if err != nil {
				return err
			}
			defer authSvc.Sessions.Close()
			if addr == "" {
				addr = env.Config.Server.Addr
			}
			if basePath == "" {
				basePath = env.Config.Server.BasePath
			}
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			handler, err := server.New(server.Config{
				Engine:   env.Engine,
				Auth:     authSvc,
				BasePath: basePath,
				JWT:      server.AuthConfig{JWTSecret: authSvc.Secret},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving Sitework API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

// authServiceOffline builds a credential service without Redis. Only
// operations that never touch sessions may use it.
func authServiceOffline(r repo.Repo) auth.Service {
	return auth.Service{Repo: r}
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withEnv(ctx, func(ctx context.Context, env *app.Env) error {
		return fn(ctx, env.Engine)
	})
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
