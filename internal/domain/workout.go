package domain

// Exercise is a catalog exercise.
type Exercise struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MuscleGroup string `json:"muscleGroup"`
	VideoURL    string `json:"videoUrl,omitempty"`
}

// WorkoutExercise is an exercise prescribed within a workout template.
type WorkoutExercise struct {
	ID       string   `json:"id"`
	Sets     string   `json:"sets"`
	Reps     string   `json:"reps"`
	Rest     string   `json:"rest"`
	Exercise Exercise `json:"exercise"`
}

// WorkoutTemplate is a workout assigned to the user.
type WorkoutTemplate struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Goal      string            `json:"goal"`
	Level     string            `json:"level"`
	Exercises []WorkoutExercise `json:"exercises"`
}
