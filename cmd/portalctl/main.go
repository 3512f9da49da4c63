package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/visionboost/portal/cmd/portalctl/cli"
	"github.com/visionboost/portal/internal/api"
	"github.com/visionboost/portal/internal/nav"
	"github.com/visionboost/portal/internal/platform/cache"
	"github.com/visionboost/portal/internal/services"
	"github.com/visionboost/portal/internal/social"
)

type redisFlags struct {
	RedisAddr     string `name:"redis-addr" env:"REDIS_ADDR" default:"127.0.0.1:6379" help:"Redis address shared with the portal."`
	RedisPassword string `name:"redis-password" env:"REDIS_PASSWORD" help:"Redis password."`
	RedisDB       int    `name:"redis-db" env:"REDIS_DB" default:"0" help:"Redis database number."`
}

func (f redisFlags) options() cache.Options {
	return cache.Options{Addr: f.RedisAddr, Password: f.RedisPassword, DB: f.RedisDB}
}

type portalctl struct {
	Nav  navCmd  `cmd:"" help:"Print the navigation menu a role sees."`
	Ping pingCmd `cmd:"" help:"Check that the backend API answers."`
	Jobs jobsCmd `cmd:"" help:"Inspect and trigger background jobs."`
	Link linkCmd `cmd:"" help:"Show a pending social account link."`
}

type navCmd struct {
	Role     string   `default:"client" enum:"admin,agent,client" help:"Role whose menu to print."`
	Services []string `help:"Active services of the account (marketing, website, courses)."`
	Path     string   `help:"Current path, marks the active entry."`
	Open     []string `help:"Group ids to expand."`
}

func (c *navCmd) Run(_ context.Context) error {
	menus, err := nav.Default()
	if err != nil {
		return err
	}
	open := nav.Expansion{}
	for _, id := range c.Open {
		open[id] = true
	}
	path := c.Path
	if path == "" {
		path = menus.Home(c.Role)
	}
	return cli.WriteMenu(os.Stdout, menus.Render(c.Role, path, services.Parse(c.Services), open))
}

type pingCmd struct {
	API     string        `name:"api" env:"API_BASE_URL" default:"http://localhost:8000/api" help:"Backend API base URL."`
	Timeout time.Duration `default:"5s" help:"Request timeout."`
}

func (c *pingCmd) Run(ctx context.Context) error {
	client, err := api.New(api.Config{BaseURL: c.API, Timeout: c.Timeout})
	if err != nil {
		return err
	}
	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("portalctl: backend %s: %w", c.API, err)
	}
	fmt.Fprintf(os.Stdout, "backend %s ok in %s\n", c.API, time.Since(start).Round(time.Millisecond))
	return nil
}

type jobsCmd struct {
	Trigger   jobsTriggerCmd   `cmd:"" help:"Enqueue a job now."`
	Inspect   jobsInspectCmd   `cmd:"" help:"Print queue counters."`
	Scheduled jobsScheduledCmd `cmd:"" help:"List scheduled tasks."`
}

type jobsTriggerCmd struct {
	redisFlags
	Name string `arg:"" help:"Task type (backend:ping, social:link:verify)."`
	Link string `help:"Link id for social:link:verify."`
}

func (c *jobsTriggerCmd) Run(ctx context.Context) error {
	jobsCLI := cli.NewJobsCLI(c.options().Asynq())
	defer jobsCLI.Close()
	info, err := jobsCLI.Trigger(ctx, c.Name, c.Link)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return nil
}

type jobsInspectCmd struct {
	redisFlags
}

func (c *jobsInspectCmd) Run() error {
	jobsCLI := cli.NewJobsCLI(c.options().Asynq())
	defer jobsCLI.Close()
	stats, err := jobsCLI.InspectQueue()
	if err != nil {
		return err
	}
	return printJSON(stats)
}

type jobsScheduledCmd struct {
	redisFlags
	Size int `default:"10" help:"Page size."`
}

func (c *jobsScheduledCmd) Run() error {
	jobsCLI := cli.NewJobsCLI(c.options().Asynq())
	defer jobsCLI.Close()
	tasks, err := jobsCLI.ListScheduled(c.Size)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339), strings.TrimSpace(string(t.Payload)))
	}
	return nil
}

type linkCmd struct {
	redisFlags
	ID string `arg:"" help:"Link id."`
}

func (c *linkCmd) Run(ctx context.Context) error {
	client, err := cache.New(ctx, c.options())
	if err != nil {
		return err
	}
	defer client.Close()
	link, err := social.NewStore(client, 0).Get(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("portalctl: link %s: %w", c.ID, err)
	}
	return printJSON(link)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx := kong.Parse(&portalctl{},
		kong.Name("portalctl"),
		kong.Description("Operational helpers for the VisionBoost portal."),
		kong.UsageOnError(),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
