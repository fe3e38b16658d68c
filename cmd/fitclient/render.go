package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/infra/config"
	"github.com/mkrupp/nutrifit-client/internal/svc/profilesvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/workoutsvc"
)

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func likeMark(liked bool) string {
	if liked {
		return "♥"
	}

	return "♡"
}

func printProfile(w io.Writer, p *domain.Profile) {
	printf(w, "%s <%s>\n", p.Name, p.Email)
	printf(w, "  id       %s\n", p.ID)

	if p.BirthDate != "" {
		printf(w, "  born     %s (%d)\n", domain.FormatBirthDate(p.BirthDate), p.Age)
	}

	if p.Height > 0 {
		printf(w, "  height   %s cm\n", humanize.Ftoa(p.Height))
	}

	printf(w, "  goal     %s, level %s\n", p.Goal, p.Level)

	if p.Stats != nil {
		printf(w, "  stats    %s workouts, %s followers, %s\n",
			humanize.Comma(int64(p.Stats.Workouts)), humanize.Comma(int64(p.Stats.Followers)), p.Stats.Weight)
	}
}

func printPublicProfile(w io.Writer, view *profilesvc.PublicProfileView) {
	p := view.Profile

	following := "not following"
	if p.IsFollowing {
		following = "following"
	}

	printf(w, "%s (%s)\n", p.Name, following)
	printf(w, "  goal     %s, level %s\n", p.Goal, p.Level)
	printf(w, "  %s posts, %s followers, %s following\n",
		humanize.Comma(int64(p.Count.Posts)), humanize.Comma(int64(p.Count.Followers)),
		humanize.Comma(int64(p.Count.Following)))

	printPosts(w, view.Posts)
}

func printPosts(w io.Writer, posts []domain.Post) {
	for _, p := range posts {
		printf(w, "%s  %s %d  💬 %d  %s · %s\n", p.ID, likeMark(p.Liked), p.Likes, p.Comments,
			p.Author.Name, humanize.Time(p.CreatedAt))

		if p.Caption != "" {
			printf(w, "    %s\n", p.Caption)
		}
	}
}

func printPostDetails(w io.Writer, p *domain.PostDetails) {
	printf(w, "%s by %s · %s\n", p.ID, p.Author.Name, humanize.Time(p.CreatedAt))

	if p.Caption != "" {
		printf(w, "  %s\n", p.Caption)
	}

	printf(w, "  %s %d  💬 %d\n", likeMark(p.Liked), p.Likes, p.CommentsCount)

	for _, c := range p.Comments {
		printComment(w, c)
	}
}

func printComment(w io.Writer, c domain.Comment) {
	printf(w, "  %s (%s): %s\n", c.User.Name, humanize.Time(c.CreatedAt), c.Content)
}

func printWeights(w io.Writer, records []domain.WeightRecord) {
	for i, r := range records {
		delta := ""
		if i < len(records)-1 {
			delta = fmt.Sprintf("  %+.1f kg", r.Delta)
		}

		printf(w, "%s  %.1f kg%s\n", r.Date.Format("02/01/2006"), r.Weight, delta)
	}
}

func printWorkouts(w io.Writer, workouts []domain.WorkoutTemplate) {
	for _, wt := range workouts {
		printf(w, "%s\n", wt.Name)

		for _, we := range wt.Exercises {
			printf(w, "  %-30s %s\n", we.Exercise.Name, workoutsvc.Prescription(we))
		}

		if len(wt.Exercises) == 0 {
			printf(w, "  %s\n", strings.Repeat("-", 8))
		}
	}
}

func printSettings(w io.Writer, settings []config.Setting) {
	for _, s := range settings {
		printf(w, "%s=%s (%s)\n", s.Name, s.Value, s.Source)
	}
}
