package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/api"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/user"
	"github.com/hackgods/clinic-appointments/pkg/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	AcceptRatio     float64
	ReadRatio       float64
	PatientLimit    int
	SpecialistLimit int
	TargetLimit     int
	PostgresDSN     string
	JWTSecret       string
}

// target is one bookable slot that many workers compete for.
type target struct {
	SpecialistID uuid.UUID
	Specialty    string
	Instant      time.Time
}

type created struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	SpecialistID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Targets  []target
	mu       sync.RWMutex
	bookings []created
}

func (dp *DataPool) AddBooking(b created) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) GetRandomBooking(rng *rand.Rand) (created, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return created{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking  OperationMetrics
	Accept   OperationMetrics
	ReadByID OperationMetrics
	List     OperationMetrics
}

type Simulator struct {
	config    SimConfig
	pool      *DataPool
	client    *http.Client
	metrics   Metrics
	logger    zerolog.Logger
	conflicts sync.Map // error code -> *int64
}

func main() {
	logger := logging.New(getEnv("LOG_LEVEL", "info")).With().Str("service", "simulate").Logger()

	cfg := loadConfig(logger)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("accept", cfg.AcceptRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}

	sim.pool, err = sim.loadDataPool(ctx, user.NewPgRepository(pgPool))
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("patients", len(sim.pool.Patients)).
		Int("targets", len(sim.pool.Targets)).
		Msg("data pool loaded")

	// Run simulation
	sim.Run()

	// Print report
	sim.PrintReport()
}

func loadConfig(logger zerolog.Logger) SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		AcceptRatio:     getFloat("SIM_ACCEPT_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 400),
		SpecialistLimit: getInt("SIM_SPECIALIST_LIMIT", 5),
		TargetLimit:     getInt("SIM_TARGET_LIMIT", 50),
		PostgresDSN:     baseCfg.PostgresDSN,
		JWTSecret:       baseCfg.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.AcceptRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AcceptRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool reads seeded users and asks the API for the free slots of a
// few specialists. Those slots become the contended targets.
func (s *Simulator) loadDataPool(ctx context.Context, users user.Repository) (*DataPool, error) {
	dataPool := &DataPool{}

	patients, err := users.List(ctx, user.RolePatient)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for i, p := range patients {
		if i >= s.config.PatientLimit {
			break
		}
		dataPool.Patients = append(dataPool.Patients, p.ID)
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}

	specialists, err := users.List(ctx, user.RoleSpecialist)
	if err != nil {
		return nil, fmt.Errorf("load specialists: %w", err)
	}

	browser := dataPool.Patients[0]
	picked := 0
	for _, sp := range specialists {
		if picked >= s.config.SpecialistLimit || len(dataPool.Targets) >= s.config.TargetLimit {
			break
		}
		if !sp.Bookable() {
			continue
		}
		picked++

		for _, specialty := range sp.Specialties {
			targets, err := s.freeSlots(ctx, browser, sp.ID, specialty)
			if err != nil {
				return nil, err
			}
			dataPool.Targets = append(dataPool.Targets, targets...)
		}
	}

	if len(dataPool.Targets) > s.config.TargetLimit {
		dataPool.Targets = dataPool.Targets[:s.config.TargetLimit]
	}
	if len(dataPool.Targets) == 0 {
		return nil, fmt.Errorf("no free slots found")
	}

	return dataPool, nil
}

func (s *Simulator) freeSlots(ctx context.Context, as, specialistID uuid.UUID, specialty string) ([]target, error) {
	base := fmt.Sprintf("%s/specialists/%s", s.config.APIBaseURL, specialistID)
	q := url.Values{"specialty": {specialty}}

	var days api.DaysResponse
	if err := s.getJSON(ctx, as, base+"/days?"+q.Encode(), &days); err != nil {
		return nil, fmt.Errorf("days for %s: %w", specialistID, err)
	}
	if len(days.Days) == 0 {
		return nil, nil
	}

	q.Set("date", days.Days[0])
	var slots api.SlotsResponse
	if err := s.getJSON(ctx, as, base+"/slots?"+q.Encode(), &slots); err != nil {
		return nil, fmt.Errorf("slots for %s: %w", specialistID, err)
	}

	var out []target
	for _, slot := range slots.Slots {
		if !slot.Occupied {
			out = append(out, target{SpecialistID: specialistID, Specialty: specialty, Instant: slot.Instant})
		}
	}
	return out, nil
}

func (s *Simulator) getJSON(ctx context.Context, as uuid.UUID, endpoint string, v any) error {
	req, err := s.newRequest(ctx, as, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (s *Simulator) newRequest(ctx context.Context, as uuid.UUID, method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}

	token, err := auth.Sign(s.config.JWTSecret, user.Identity{ID: as, EmailVerified: true}, time.Hour)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Select operation based on ratios
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.AcceptRatio {
				s.doAccept(ctx, rng)
			} else if rng.Intn(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doList(ctx, rng)
			}
		}
	}
}

// call sends one request and reports latency, success, and whether the API
// answered with a conflict.
func (s *Simulator) call(ctx context.Context, as uuid.UUID, method, endpoint string, body any, want int, out any) (time.Duration, bool, bool) {
	req, err := s.newRequest(ctx, as, method, endpoint, body)
	if err != nil {
		return 0, false, false
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, false, false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case want:
		if out != nil {
			_ = json.NewDecoder(resp.Body).Decode(out)
		}
		return latency, true, false
	case http.StatusConflict:
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		s.countConflict(e.Error)
		return latency, false, true
	default:
		return latency, false, false
	}
}

func (s *Simulator) countConflict(code string) {
	v, _ := s.conflicts.LoadOrStore(code, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	latency, success, conflict := s.call(ctx, patientID, http.MethodPost, s.config.APIBaseURL+"/bookings",
		api.CreateBookingRequest{
			SpecialistID: t.SpecialistID.String(),
			Specialty:    t.Specialty,
			Instant:      t.Instant,
		}, http.StatusCreated, &resp)

	if success && resp.ID != uuid.Nil {
		s.pool.AddBooking(created{ID: resp.ID, PatientID: patientID, SpecialistID: t.SpecialistID})
	}
	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doAccept(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	latency, success, conflict := s.call(ctx, b.SpecialistID, http.MethodPost,
		fmt.Sprintf("%s/bookings/%s/accept", s.config.APIBaseURL, b.ID), nil, http.StatusOK, nil)
	s.metrics.Accept.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	latency, success, _ := s.call(ctx, b.PatientID, http.MethodGet,
		fmt.Sprintf("%s/bookings/%s", s.config.APIBaseURL, b.ID), nil, http.StatusOK, nil)
	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	latency, success, _ := s.call(ctx, patientID, http.MethodGet,
		s.config.APIBaseURL+"/bookings?limit=20&offset=0", nil, http.StatusOK, nil)
	s.metrics.List.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Targets: %d slots, %d bookings created\n", len(s.pool.Targets), len(s.pool.bookings))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List", &s.metrics.List)

	var codes []string
	s.conflicts.Range(func(k, _ any) bool {
		codes = append(codes, k.(string))
		return true
	})
	sort.Strings(codes)
	if len(codes) > 0 {
		fmt.Println("Conflicts by code:")
		for _, code := range codes {
			v, _ := s.conflicts.Load(code)
			fmt.Printf("  %s: %d\n", code, atomic.LoadInt64(v.(*int64)))
		}
	}

	// More than one booking per target means two requests won the same slot.
	if len(s.pool.bookings) > len(s.pool.Targets) {
		fmt.Printf("\nWARNING: %d bookings for %d slots\n", len(s.pool.bookings), len(s.pool.Targets))
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
