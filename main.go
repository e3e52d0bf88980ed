package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"attendance-server-go/attendance"
	"attendance-server-go/config"
	"attendance-server-go/db"
	"attendance-server-go/handlers"
	"attendance-server-go/ledger"
	"attendance-server-go/metrics"
	"attendance-server-go/models"
	"attendance-server-go/roster"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.HTTP.GinMode)

	// Initialize Redis Client
	redisClient, err := db.InitializeRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer redisClient.Close()

	// Create Redis Service
	redisService := db.NewRedisService(redisClient)

	if cfg.SeedDemo {
		checkAndSeedData(redisService)
	}

	// Rebuild in-memory state; every later mutation writes through to Redis.
	students, err := redisService.LoadStudents()
	if err != nil {
		log.Fatalf("Failed to load students: %v", err)
	}
	logs, err := redisService.LoadLogs()
	if err != nil {
		log.Fatalf("Failed to load attendance logs: %v", err)
	}
	r := roster.New(redisService)
	r.Load(students)
	l := ledger.New(redisService)
	l.Load(logs)
	log.Printf("Loaded %d students (%d enrolled) and %d attendance logs", r.Len(), r.EnrolledCount(), l.Len())
	if repaired, err := redisService.SyncClassMembers(r.List()); err != nil {
		log.Printf("Warning: could not verify class membership: %v", err)
	} else if repaired > 0 {
		log.Printf("Repaired %d class memberships", repaired)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	svc := attendance.NewService(r, l,
		attendance.WithLocation(cfg.Location),
		attendance.WithMetrics(collector),
	)

	// Create API Handler (injecting the services)
	apiHandler := handlers.NewAPIHandler(redisService, svc)

	// Initialize Gin router
	router := gin.Default()
	handlers.RegisterRoutes(router, apiHandler, metrics.Handler(reg))

	addr := cfg.HTTP.Addr()
	log.Printf("Starting server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// checkAndSeedData adds the demo roster when Redis holds no classes and no students.
func checkAndSeedData(service *db.RedisService) {
	empty, err := service.IsEmpty()
	if err != nil {
		log.Printf("Warning: could not check Redis for existing data: %v. Skipping demo data.", err)
		return
	}
	if !empty {
		log.Println("Found existing data in Redis. Skipping demo data.")
		return
	}
	log.Println("No classes or students found in Redis. Adding demo data...")
	seedInitialData(service)
}

// seedInitialData adds one demo class with five students, none enrolled.
func seedInitialData(s *db.RedisService) {
	class := models.Clazz{ID: "10A", Name: "Class 10A"}
	if err := s.AddClass(class); err != nil {
		log.Printf("Error adding demo class %s: %v", class.ID, err)
	}

	names := []string{"Somchai Vongsavanh", "Mali Phommavong", "Thongly Sithida", "Kham Souvannarath", "Noy Keomany"}
	for i, name := range names {
		student := models.Student{ID: fmt.Sprintf("%03d", i+1), Name: name, GroupLabel: class.ID}
		if err := s.SaveStudent(student); err != nil {
			log.Printf("Error adding demo student %s: %v", student.ID, err)
		}
	}
	log.Println("Demo data added.")
}
