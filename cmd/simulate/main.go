package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/clocktime"
	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/db"
	"github.com/hackgods/consultation-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	PaymentRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	ClinicLimit  int
}

type clinic struct {
	ID      uuid.UUID
	Opening int
	Closing int
}

type DataPool struct {
	Patients []uuid.UUID
	Clinics  []clinic
	Days     []string

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record counts 4xx responses as rejections and everything else non-2xx as errors.
func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, maxLatency time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking      OperationMetrics
	Payment      OperationMetrics
	Cancel       OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		log.Fatal().Msg("SIM_WORKERS and SIM_DURATION must be > 0")
	}
	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("payment", cfg.PaymentRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, baseCfg.ClinicLocation)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("patients", len(dataPool.Patients)).Int("clinics", len(dataPool.Clinics)).Msg("data loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		log.Fatal().Err(err).Msg("overlap check")
	}
	if overlaps > 0 {
		log.Fatal().Int("overlaps", overlaps).Msg("doctor schedule has overlapping live appointments")
	}
	log.Info().Msg("no overlapping live appointments")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		PaymentRatio: getFloat("SIM_PAYMENT_RATIO", 0.2),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		ClinicLimit:  getInt("SIM_CLINIC_LIMIT", 20),
	}

	total := cfg.BookingRatio + cfg.PaymentRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.PaymentRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

// loadDataPool picks patients, clinics and the dates inside the booking window.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, loc *time.Location) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT id, opening_time, closing_time FROM clinics LIMIT $1`, cfg.ClinicLimit)
	if err != nil {
		return nil, fmt.Errorf("load clinics: %w", err)
	}
	for rows.Next() {
		var c clinic
		var opening, closing string
		if err := rows.Scan(&c.ID, &opening, &closing); err != nil {
			rows.Close()
			return nil, err
		}
		if c.Opening, err = clocktime.To24h(opening); err != nil {
			continue
		}
		if c.Closing, err = clocktime.To24h(closing); err != nil {
			continue
		}
		dp.Clinics = append(dp.Clinics, c)
	}
	rows.Close()

	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dp.Clinics) == 0 {
		return nil, fmt.Errorf("no clinics loaded")
	}

	today := time.Now().In(loc)
	for d := 3; d <= 8; d++ {
		dp.Days = append(dp.Days, today.AddDate(0, 0, d).Format("2006-01-02"))
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.PaymentRatio:
			s.doPayment(ctx, rng)
		case r < s.config.BookingRatio+s.config.PaymentRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.doAvailability(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Clinics[rng.Intn(len(s.pool.Clinics))]
	slots := (c.Closing - c.Opening) / 30
	if slots <= 0 {
		return
	}
	start := c.Opening + 30*rng.Intn(slots)

	ctype := "offline"
	if gofakeit.Bool() {
		ctype = "online"
	}

	var out struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	status, latency, err := s.post(ctx, "/appointments/book/"+c.ID.String(), map[string]string{
		"patient_id":        s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"appointment_date":  s.pool.Days[rng.Intn(len(s.pool.Days))],
		"start_time":        clocktime.MinutesTo12h(start),
		"consultation_type": ctype,
	}, &out)
	if err == nil && status == http.StatusCreated && out.Data.ID != uuid.Nil {
		s.pool.AddAppointment(out.Data.ID)
	}
	s.metrics.Booking.Record(latency, status, err)
}

func (s *Simulator) doPayment(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	status, latency, err := s.post(ctx, "/appointments/initiatePayment/"+id.String(), nil, nil)
	if err == nil && status == http.StatusOK {
		var l2 time.Duration
		status, l2, err = s.post(ctx, "/appointments/confirmPayment/"+id.String(),
			map[string]string{"payment_method_id": "pm_card_visa"}, nil)
		latency += l2
	}
	s.metrics.Payment.Record(latency, status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.post(ctx, "/appointments/cancel/"+id.String(), nil, nil)
	s.metrics.Cancel.Record(latency, status, err)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	c := s.pool.Clinics[rng.Intn(len(s.pool.Clinics))]
	url := fmt.Sprintf("%s/clinics/%s/availability?date=%s", s.config.APIBaseURL, c.ID, s.pool.Days[rng.Intn(len(s.pool.Days))])

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	s.metrics.Availability.Record(latency, status, err)
}

func (s *Simulator) post(ctx context.Context, path string, body any, out any) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency, nil
}

// countOverlaps checks the invariant across every clinic of a doctor, which
// the per-slot unique index alone does not cover.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.appointment_date = b.appointment_date
		 AND a.id < b.id
		 AND a.start_minutes < b.end_minutes
		 AND b.start_minutes < a.end_minutes
		WHERE a.status <> 'cancelled'
		  AND b.status <> 'cancelled'
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Payment", &s.metrics.Payment)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	errs := atomic.LoadInt64(&om.Error)
	avg, p50, p95, maxLatency := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), maxLatency.Round(time.Millisecond))
}

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
