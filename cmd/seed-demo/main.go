package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eduiitia-svg/eduiitia-backend/internal/config"
	"github.com/eduiitia-svg/eduiitia-backend/internal/database"
	"github.com/eduiitia-svg/eduiitia-backend/internal/logger"
	"github.com/eduiitia-svg/eduiitia-backend/internal/model"
	"github.com/eduiitia-svg/eduiitia-backend/internal/repository"
	"github.com/eduiitia-svg/eduiitia-backend/internal/service"
	"github.com/jackc/pgx/v5"
)

type seedQuestion struct {
	text       string
	options    []string
	correct    string
	difficulty model.Difficulty
}

var demoQuestions = []seedQuestion{
	{"What is 12 x 8?", []string{"86", "96", "104", "108"}, "96", model.DifficultyEasy},
	{"Which planet is known as the Red Planet?", []string{"Venus", "Jupiter", "Mars", "Saturn"}, "Mars", model.DifficultyEasy},
	{"What is the square root of 144?", []string{"10", "11", "12", "14"}, "12", model.DifficultyEasy},
	{"Which gas makes up most of Earth's atmosphere?", []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Argon"}, "Nitrogen", model.DifficultyMedium},
	{"If 3x + 5 = 20, what is x?", []string{"3", "4", "5", "6"}, "5", model.DifficultyMedium},
	{"What is the derivative of x^2?", []string{"x", "2x", "x^2", "2"}, "2x", model.DifficultyMedium},
	{"Which sorting algorithm has the best average time complexity?", []string{"Bubble sort", "Insertion sort", "Merge sort", "Selection sort"}, "Merge sort", model.DifficultyHard},
	{"What is the pH of a neutral solution?", []string{"0", "7", "10", "14"}, "7", model.DifficultyEasy},
	{"How many degrees are in the interior angles of a triangle?", []string{"90", "180", "270", "360"}, "180", model.DifficultyEasy},
	{"What is 2^10?", []string{"512", "1000", "1024", "2048"}, "1024", model.DifficultyMedium},
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	authService := service.NewAuthService(cfg, nil)
	studentService := service.NewStudentService(studentRepo, authService)

	fmt.Println("=== Seeding Demo Data ===")

	// Demo student, idempotent on email.
	if _, err := studentRepo.GetByEmail(ctx, "demo@eduiitia.com"); err == pgx.ErrNoRows {
		student, err := studentService.Register(ctx, "Demo Student", "demo@eduiitia.com", "demo-password")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create demo student")
		}
		fmt.Printf("Created student %q with ID: %d\n", student.Email, student.ID)
	} else if err != nil {
		log.Fatal().Err(err).Msg("Failed to check demo student")
	} else {
		fmt.Println("Demo student already exists, skipping")
	}

	timeLimit := 30
	test := &model.Test{
		Title:            "General Aptitude Demo",
		Subject:          "Mathematics",
		TotalQuestions:   len(demoQuestions),
		TimeLimitMinutes: &timeLimit,
		Status:           model.TestStatusPublished,
	}
	if err := testRepo.Create(ctx, test); err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo test")
	}
	fmt.Printf("Created test %q with ID: %s\n", test.Title, test.ID)

	for i, sq := range demoQuestions {
		options, err := json.Marshal(sq.options)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to marshal options")
		}
		q := &model.Question{
			TestID:        test.ID,
			QuestionIndex: i,
			QuestionText:  sq.text,
			Options:       options,
			CorrectAnswer: sq.correct,
			Difficulty:    sq.difficulty,
		}
		if err := questionRepo.Create(ctx, q); err != nil {
			log.Fatal().Err(err).Int("index", i).Msg("Failed to create question")
		}
	}
	fmt.Printf("Created %d questions\n", len(demoQuestions))

	fmt.Println("Done. Run the server to prewarm the test cache.")
}
