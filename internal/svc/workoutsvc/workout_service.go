package workoutsvc

import (
	"context"
	"fmt"

	"github.com/mkrupp/nutrifit-client/internal/domain"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/svc/apiclient"
)

// Gateway is the subset of apiclient.Gateway used by the workouts screen.
type Gateway interface {
	MyWorkouts(ctx context.Context) ([]domain.WorkoutTemplate, error)
}

var _ Gateway = (*apiclient.Gateway)(nil)

// Service lists the workout templates assigned to the signed-in user.
type Service struct {
	gw  Gateway
	log logging.Logger
}

func NewService(gw Gateway) *Service {
	return &Service{gw: gw, log: logging.GetLogger("svc.workoutsvc")}
}

// MyWorkouts returns the assigned workouts. Failures carry the server message
// when there is one.
func (s *Service) MyWorkouts(ctx context.Context) ([]domain.WorkoutTemplate, error) {
	workouts, err := s.gw.MyWorkouts(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "list workouts failed", "error", err)

		msg := apiclient.ServerMessage(err)
		if msg == "" {
			msg = "Could not load workouts."
		}

		return nil, domain.NewUserError(domain.ErrNetworkOrServer, msg, err)
	}

	s.log.DebugContext(ctx, "workouts listed", "count", len(workouts))

	return workouts, nil
}

// Prescription renders the sets, reps and rest of an exercise, e.g. "4 x 10 (60s)".
func Prescription(we domain.WorkoutExercise) string {
	if we.Rest == "" {
		return fmt.Sprintf("%s x %s", we.Sets, we.Reps)
	}

	return fmt.Sprintf("%s x %s (%s)", we.Sets, we.Reps, we.Rest)
}
