package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/routeguard"
	"github.com/mkrupp/nutrifit-client/internal/svc/interactionsvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/profilesvc"
)

var (
	errUsage           = errors.New("usage")
	errNotSignedIn     = errors.New("not signed in, run: fitclient login <email> <password>")
	errAlreadySignedIn = errors.New("already signed in, run: fitclient logout")
	errRolledBack      = errors.New("change was rolled back")
)

type command struct {
	name  string
	args  string
	zone  routeguard.Zone
	nargs int
	run   func(ctx context.Context, app *App, args []string) error
}

//nolint:gochecknoglobals
var commands = []command{
	{"login", "<email> <password>", routeguard.ZoneAuth, 2, cmdLogin},
	{"register", "-name N -email E -password P -birth DD/MM/YYYY -weight KG -height CM [-goal G]", routeguard.ZoneAuth, 0, cmdRegister},
	{"logout", "", routeguard.ZoneApp, 0, cmdLogout},
	{"whoami", "", routeguard.ZoneApp, 0, cmdWhoami},
	{"route", "<segment>", routeguard.ZoneApp, 1, cmdRoute},
	{"feed", "", routeguard.ZoneApp, 0, cmdFeed},
	{"post", "<id>", routeguard.ZoneApp, 1, cmdPost},
	{"like", "<id>", routeguard.ZoneApp, 1, cmdLike},
	{"comment", "<id> <text>", routeguard.ZoneApp, 2, cmdComment},
	{"new-post", "<image> <caption>", routeguard.ZoneApp, 1, cmdNewPost},
	{"delete-post", "<id>", routeguard.ZoneApp, 1, cmdDeletePost},
	{"profile", "[<id> | edit -name N -birth DD/MM/YYYY -height CM [-goal G] [-image FILE]]", routeguard.ZoneApp, 0, cmdProfile},
	{"follow", "<id>", routeguard.ZoneApp, 1, cmdFollow},
	{"search", "<query>", routeguard.ZoneApp, 1, cmdSearch},
	{"weight", "[add <kg>]", routeguard.ZoneApp, 0, cmdWeight},
	{"workouts", "", routeguard.ZoneApp, 0, cmdWorkouts},
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: fitclient <command> [args]")

	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-12s %s\n", c.name, c.args)
	}

	_, _ = fmt.Fprintf(w, "  %-12s %s\n", "config", "print the resolved configuration")
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}

	return command{}, false
}

// run restores the session, lets the route guard check the zone of the
// command and executes it.
func run(ctx context.Context, cfg Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}

	if args[0] == "config" {
		printSettings(out, cfg.Settings())

		return nil
	}

	cmd, ok := lookup(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	args = args[1:]
	if len(args) < cmd.nargs {
		return fmt.Errorf("%w: %s %s", errUsage, cmd.name, cmd.args)
	}

	zone := cmd.zone
	if cmd.name == "route" {
		zone = routeguard.ZoneForSegment(args[0])
	}

	app, err := NewApp(ctx, cfg, out, zone)
	if err != nil {
		return err
	}
	defer app.Close()

	app.session.Restore(ctx)

	if _, redirected := app.Redirected(); redirected && cmd.name != "route" {
		if zone == routeguard.ZoneApp {
			return errNotSignedIn
		}

		return errAlreadySignedIn
	}

	return cmd.run(app.session.Context(ctx), app, args)
}

func cmdLogin(ctx context.Context, app *App, args []string) error {
	return app.session.SignIn(ctx, args[0], args[1])
}

func cmdRegister(ctx context.Context, app *App, args []string) error {
	var data domain.SignUpData

	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&data.Name, "name", "", "full name")
	fs.StringVar(&data.Email, "email", "", "email address")
	fs.StringVar(&data.Password, "password", "", "password")
	fs.StringVar(&data.BirthDate, "birth", "", "birth date DD/MM/YYYY")
	fs.StringVar(&data.Weight, "weight", "", "weight in kg")
	fs.StringVar(&data.Height, "height", "", "height in cm")
	fs.StringVar(&data.Goal, "goal", "", "training goal")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	return app.session.SignUp(ctx, data)
}

func cmdLogout(ctx context.Context, app *App, _ []string) error {
	return app.session.SignOut(ctx)
}

func cmdWhoami(ctx context.Context, app *App, _ []string) error {
	profile, err := app.session.RefreshProfile(ctx)
	if err != nil {
		return err
	}

	printProfile(app.out, profile)

	return nil
}

func cmdRoute(_ context.Context, app *App, args []string) error {
	state := app.session.State()
	action := routeguard.Decide(state.Present(), state.IsLoading, routeguard.ZoneForSegment(args[0]))

	_, _ = fmt.Fprintf(app.out, "%s: %s\n", args[0], action)

	return nil
}

func cmdFeed(ctx context.Context, app *App, _ []string) error {
	posts, err := app.feed.List(ctx)
	if err != nil {
		return err
	}

	printPosts(app.out, app.feed.Merged(posts))

	return nil
}

func cmdPost(ctx context.Context, app *App, args []string) error {
	post, err := app.feed.Post(ctx, args[0])
	if err != nil {
		return err
	}

	printPostDetails(app.out, post)

	return nil
}

func cmdLike(ctx context.Context, app *App, args []string) error {
	if _, err := app.feed.Post(ctx, args[0]); err != nil {
		return err
	}

	pending, err := app.feed.ToggleLike(ctx, args[0])
	if err != nil {
		return err
	}

	return settle(ctx, app, pending, "liked", "unliked")
}

func cmdComment(ctx context.Context, app *App, args []string) error {
	comment, err := app.feed.Comment(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	printComment(app.out, *comment)

	return nil
}

func cmdNewPost(ctx context.Context, app *App, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	post, err := app.feed.Create(ctx, strings.Join(args[1:], " "), image)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(app.out, "post %s\n", post.ID)

	return nil
}

func cmdDeletePost(ctx context.Context, app *App, args []string) error {
	details, err := app.feed.Post(ctx, args[0])
	if err != nil {
		return err
	}

	return app.feed.Delete(ctx, domain.Post{ID: details.ID, Author: details.Author})
}

func cmdProfile(ctx context.Context, app *App, args []string) error {
	switch {
	case len(args) == 0:
		profile, err := app.profiles.Me(ctx)
		if err != nil {
			return err
		}

		printProfile(app.out, profile)
	case args[0] == "edit":
		return editProfile(ctx, app, args[1:])
	default:
		view, err := app.profiles.PublicProfile(ctx, args[0])
		if err != nil {
			return err
		}

		printPublicProfile(app.out, view)
	}

	return nil
}

func editProfile(ctx context.Context, app *App, args []string) error {
	current, err := app.profiles.Me(ctx)
	if err != nil {
		return err
	}

	form := profilesvc.EditForm(*current)

	var imagePath string

	fs := flag.NewFlagSet("profile edit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&form.Name, "name", form.Name, "full name")
	fs.StringVar(&form.BirthDate, "birth", form.BirthDate, "birth date DD/MM/YYYY")
	fs.StringVar(&form.Height, "height", form.Height, "height in cm")
	fs.StringVar(&form.Goal, "goal", form.Goal, "training goal")
	fs.StringVar(&imagePath, "image", "", "profile picture file")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if imagePath != "" {
		if form.ProfileImage, err = app.images.PrepareFile(ctx, imagePath); err != nil {
			return err
		}
	}

	profile, err := app.profiles.Update(ctx, form)
	if err != nil {
		return err
	}

	printProfile(app.out, profile)

	return nil
}

func cmdFollow(ctx context.Context, app *App, args []string) error {
	if _, err := app.profiles.PublicProfile(ctx, args[0]); err != nil {
		return err
	}

	pending, err := app.profiles.ToggleFollow(ctx, args[0])
	if err != nil {
		return err
	}

	return settle(ctx, app, pending, "following", "unfollowed")
}

func cmdSearch(ctx context.Context, app *App, args []string) error {
	users, err := app.profiles.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	for _, u := range users {
		_, _ = fmt.Fprintf(app.out, "%s  %s\n", u.ID, u.Name)
	}

	return nil
}

func cmdWeight(ctx context.Context, app *App, args []string) error {
	if len(args) > 0 {
		if args[0] != "add" || len(args) != 2 {
			return fmt.Errorf("%w: weight [add <kg>]", errUsage)
		}

		if _, err := app.profiles.AddWeight(ctx, args[1]); err != nil {
			return err
		}
	}

	records, err := app.profiles.WeightHistory(ctx)
	if err != nil {
		return err
	}

	printWeights(app.out, records)

	return nil
}

func cmdWorkouts(ctx context.Context, app *App, _ []string) error {
	workouts, err := app.workouts.MyWorkouts(ctx)
	if err != nil {
		return err
	}

	printWorkouts(app.out, workouts)

	return nil
}

// settle waits for a toggle to be confirmed and prints the resulting state.
func settle(ctx context.Context, app *App, pending *interactionsvc.PendingMutation, on, off string) error {
	outcome := pending.Wait(ctx)

	switch {
	case outcome.Confirmed:
		label := off
		if pending.Optimistic.Flag {
			label = on
		}

		_, _ = fmt.Fprintf(app.out, "%s (%d)\n", label, pending.Optimistic.Count)

		return nil
	case outcome.RolledBack:
		return fmt.Errorf("%w: %w", errRolledBack, outcome.Err)
	default:
		return outcome.Err
	}
}
