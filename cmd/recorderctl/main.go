package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/terra-clan/interview-recorder/pkg/auth"
	"github.com/terra-clan/interview-recorder/internal/config"
	"github.com/terra-clan/interview-recorder/pkg/client"
)

const usage = `usage: recorderctl [flags] <command> [args]

commands:
  login <email> <password>          sign in and store tokens
  logout                            drop stored tokens
  me                                show the signed-in user
  jobs                              list job postings
  candidates <job-id>               list candidates of a job
  candidate <candidate-id>          show a candidate and their interviews
  interviews [candidate-id]         list recorded interviews
  invite <job-id> <name> <email>    create a candidate and print the interview token
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "recorderctl: %v\n", err)
		os.Exit(1)
	}

	backendURL := flag.String("backend", cfg.Backend.URL, "backend API base URL")
	redisAddr := flag.String("redis", cfg.Redis.Address, "redis address for token storage (empty keeps tokens in memory)")
	profile := flag.String("profile", "default", "token profile name")
	timeout := flag.Duration("timeout", cfg.Backend.Timeout, "request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, closeStore := openStore(ctx, config.RedisConfig{
		Address:  *redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, *profile)
	defer closeStore()

	c := client.NewClient(*backendURL,
		client.WithTimeout(*timeout),
		client.WithSession(auth.NewSession(store)),
	)

	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "recorderctl: %v\n", err)
		if errors.Is(err, auth.ErrUnauthenticated) {
			fmt.Fprintln(os.Stderr, "run `recorderctl login` first")
		}
		os.Exit(1)
	}
}

// openStore prefers Redis so logins survive between invocations
func openStore(ctx context.Context, rc config.RedisConfig, profile string) (auth.TokenStore, func()) {
	if rc.Address == "" {
		return auth.NewMemoryStore(), func() {}
	}

	rdb, err := auth.NewRedisClient(ctx, rc.Address, rc.Password, rc.DB)
	if err != nil {
		slog.Warn("redis unavailable, tokens kept in memory", "address", rc.Address, "error", err)
		return auth.NewMemoryStore(), func() {}
	}
	return auth.NewRedisStore(rdb, profile, 0), func() { rdb.Close() }
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("login needs <email> <password>")
		}
		resp, err := c.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s\n", resp.User.Email)
		return nil

	case "logout":
		return c.Logout(ctx)

	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(user)

	case "jobs":
		jobs, err := c.ListJobs(ctx)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			fmt.Printf("%s\t%s\t%s\t%d questions\n", j.ID, j.Status, j.Title, len(j.Questions))
		}
		return nil

	case "candidates":
		if len(args) != 1 {
			return fmt.Errorf("candidates needs <job-id>")
		}
		candidates, err := c.ListCandidates(ctx, args[0])
		if err != nil {
			return err
		}
		for _, cand := range candidates {
			fmt.Printf("%s\t%s\t%s\t%s\n", cand.ID, cand.Status, cand.Name, cand.InterviewToken)
		}
		return nil

	case "candidate":
		if len(args) != 1 {
			return fmt.Errorf("candidate needs <candidate-id>")
		}
		cand, err := c.GetCandidate(ctx, args[0])
		if err != nil {
			return err
		}
		interviews, err := c.ListInterviews(ctx, cand.ID)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"candidate":  cand,
			"interviews": interviews,
		})

	case "interviews":
		if len(args) > 1 {
			return fmt.Errorf("interviews takes at most one <candidate-id>")
		}
		var candidateID string
		if len(args) == 1 {
			candidateID = args[0]
		}
		interviews, err := c.ListInterviews(ctx, candidateID)
		if err != nil {
			return err
		}
		for _, iv := range interviews {
			fmt.Printf("%s\t%s\t%s\t%s\t%ds\n", iv.ID, iv.Status, iv.CandidateName, iv.JobTitle, iv.DurationSeconds)
		}
		return nil

	case "invite":
		if len(args) != 3 {
			return fmt.Errorf("invite needs <job-id> <name> <email>")
		}
		cand, err := c.CreateCandidate(ctx, args[0], client.CandidateInput{Name: args[1], Email: args[2]})
		if err != nil {
			return err
		}
		fmt.Println(cand.InterviewToken)
		return nil
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
