// Command seed provisions a database with an admin account and, optionally,
// a demo data set (professors, students, courses, preferences) for local
// development. It is idempotent: existing users and courses are left alone.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/camatch/camatch-api/internal/models"
	"github.com/camatch/camatch-api/internal/repository"
	"github.com/camatch/camatch-api/pkg/config"
	"github.com/camatch/camatch-api/pkg/database"
)

func main() {
	var (
		adminEmail string
		adminUNI   string
		password   string
		demo       bool
	)

	flag.StringVar(&adminEmail, "admin-email", "admin@camatch.local", "Admin account email")
	flag.StringVar(&adminUNI, "admin-uni", "admin", "Admin account UNI")
	flag.StringVar(&password, "password", "changeme123", "Password for every seeded account")
	flag.BoolVar(&demo, "demo", false, "Also seed demo professors, students, courses and preferences")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := &seeder{
		users:       repository.NewUserRepository(db),
		students:    repository.NewStudentRepository(db),
		courses:     repository.NewCourseRepository(db),
		preferences: repository.NewPreferenceRepository(db),
		password:    password,
	}

	if _, err := s.ensureUser(ctx, adminEmail, adminUNI, models.RoleAdmin); err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}
	log.Printf("admin account ready: %s", adminEmail)

	if demo {
		if err := s.seedDemo(ctx); err != nil {
			log.Fatalf("failed to seed demo data: %v", err)
		}
		log.Println("demo data ready")
	}
}

type seeder struct {
	users       *repository.UserRepository
	students    *repository.StudentRepository
	courses     *repository.CourseRepository
	preferences *repository.PreferenceRepository
	password    string
}

// ensureUser creates the account unless the email or UNI is already taken,
// in which case the existing account is reused.
func (s *seeder) ensureUser(ctx context.Context, email, uni string, role models.UserRole) (*models.User, error) {
	existing, err := s.users.FindByEmailOrUNI(ctx, email, uni)
	if err == nil {
		log.Printf("user %s already present, skipping", email)
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup %s: %w", email, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		UNI:          uni,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create %s: %w", email, err)
	}
	return user, nil
}

func (s *seeder) ensureStudent(ctx context.Context, email, uni, fullName string, level models.StudyLevel, interests string) (*models.StudentProfile, error) {
	user, err := s.ensureUser(ctx, email, uni, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	profile, err := s.students.FindByUserID(ctx, user.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup profile for %s: %w", email, err)
	}

	now := time.Now().UTC()
	profile = &models.StudentProfile{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		FullName:      &fullName,
		DegreeProgram: strPtr("Industrial Engineering and Operations Research"),
		LevelOfStudy:  &level,
		Interests:     &interests,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.students.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile for %s: %w", email, err)
	}
	return profile, nil
}

func (s *seeder) seedDemo(ctx context.Context) error {
	profBell, err := s.ensureUser(ctx, "m.bell@camatch.local", "mb2001", models.RoleProfessor)
	if err != nil {
		return err
	}
	profOkafor, err := s.ensureUser(ctx, "a.okafor@camatch.local", "ao3412", models.RoleProfessor)
	if err != nil {
		return err
	}

	courses := []models.Course{
		{
			Code:             "IEOR4004",
			Title:            "Optimization Models and Methods",
			Instructor:       strPtr("M. Bell"),
			InstructorEmail:  strPtr("m.bell@camatch.local"),
			ProfessorID:      &profBell.ID,
			Track:            trackPtr(models.TrackOptimization),
			Vacancies:        3,
			GradeThreshold:   strPtr("B+"),
			SimilarCourses:   strPtr("IEOR4008,IEOR6614"),
			CompetencyMatrix: strPtr(`{"skills":{"linear programming":0.5,"python":0.3,"gurobi":0.2}}`),
		},
		{
			Code:             "IEOR4525",
			Title:            "Machine Learning for OR and FE",
			Instructor:       strPtr("M. Bell"),
			InstructorEmail:  strPtr("m.bell@camatch.local"),
			ProfessorID:      &profBell.ID,
			Track:            trackPtr(models.TrackML),
			Vacancies:        2,
			GradeThreshold:   strPtr("A-"),
			CompetencyMatrix: strPtr(`{"skills":{"machine learning":0.5,"python":0.5}}`),
		},
		{
			Code:             "IEOR4706",
			Title:            "Foundations of Financial Engineering",
			Instructor:       strPtr("A. Okafor"),
			InstructorEmail:  strPtr("a.okafor@camatch.local"),
			ProfessorID:      &profOkafor.ID,
			Track:            trackPtr(models.TrackFinance),
			Vacancies:        2,
			GradeThreshold:   strPtr("B"),
			SimilarCourses:   strPtr("IEOR4707,IEOR4709"),
			CompetencyMatrix: strPtr("stochastic calculus, derivatives, python"),
		},
		{
			Code:            "IEOR4150",
			Title:           "Probability and Statistics",
			Instructor:      strPtr("A. Okafor"),
			InstructorEmail: strPtr("a.okafor@camatch.local"),
			ProfessorID:     &profOkafor.ID,
			Track:           trackPtr(models.TrackStochastic),
			Vacancies:       4,
		},
		{
			Code:      "IEOR4000",
			Title:     "Production Management",
			Track:     trackPtr(models.TrackOperations),
			Vacancies: 1,
		},
	}
	if err := s.courses.BulkUpsertByCode(ctx, courses); err != nil {
		return fmt.Errorf("upsert courses: %w", err)
	}

	byCode := make(map[string]string, len(courses))
	stored, err := s.courses.List(ctx, models.CourseFilter{})
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	for _, c := range stored {
		byCode[c.Code] = c.ID
	}

	students := []struct {
		email, uni, name string
		level            models.StudyLevel
		interests        string
		prefs            []demoPreference
	}{
		{
			"a.ramos@camatch.local", "ar4410", "Alicia Ramos", models.StudyLevelMasters,
			"Machine Learning & Analytics, Optimization",
			[]demoPreference{
				{"IEOR4525", 1, true, strPtr("A")},
				{"IEOR4004", 2, false, strPtr("A-")},
			},
		},
		{
			"b.chen@camatch.local", "bc2218", "Bowen Chen", models.StudyLevelMasters,
			"Financial Engineering & Risk Management",
			[]demoPreference{
				{"IEOR4706", 1, false, strPtr("B+")},
				{"IEOR4150", 2, false, nil},
			},
		},
		{
			"c.mensah@camatch.local", "cm5190", "Comfort Mensah", models.StudyLevelUndergraduate,
			"Optimization, Operations",
			[]demoPreference{
				{"IEOR4004", 1, false, strPtr("A")},
				{"IEOR4000", 2, false, strPtr("B+")},
			},
		},
		{
			"d.petrov@camatch.local", "dp3307", "Dmitri Petrov", models.StudyLevelMasters,
			"Stochastic Modeling and Simulation",
			[]demoPreference{
				{"IEOR4150", 1, true, strPtr("A-")},
			},
		},
	}

	for _, st := range students {
		profile, err := s.ensureStudent(ctx, st.email, st.uni, st.name, st.level, st.interests)
		if err != nil {
			return err
		}
		existing, err := s.preferences.ListByStudent(ctx, profile.ID)
		if err != nil {
			return fmt.Errorf("list preferences for %s: %w", st.email, err)
		}
		if len(existing) > 0 {
			continue
		}
		for _, p := range st.prefs {
			courseID, ok := byCode[p.courseCode]
			if !ok {
				return fmt.Errorf("course %s missing after upsert", p.courseCode)
			}
			pref := &models.Preference{
				ID:               uuid.NewString(),
				StudentID:        profile.ID,
				CourseID:         courseID,
				Rank:             p.rank,
				FacultyRequested: p.facultyRequested,
				GradeInCourse:    p.grade,
			}
			if err := s.preferences.Create(ctx, pref); err != nil {
				return fmt.Errorf("create preference for %s: %w", st.email, err)
			}
		}
		log.Printf("student %s seeded with %d preferences", st.email, len(st.prefs))
	}

	return nil
}

type demoPreference struct {
	courseCode       string
	rank             int
	facultyRequested bool
	grade            *string
}

func strPtr(s string) *string { return &s }

func trackPtr(t models.Track) *models.Track { return &t }
