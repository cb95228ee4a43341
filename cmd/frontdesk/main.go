// Frontdesk runs the terminal-side session and shift coordinator for one front-desk terminal.
// Operator actions are read from stdin, one command per line (type "help").
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gym-frontdesk/backend/internal/audit"
	auditrepo "gym-frontdesk/backend/internal/audit/repository"
	"gym-frontdesk/backend/internal/config"
	"gym-frontdesk/backend/internal/db"
	devicerepo "gym-frontdesk/backend/internal/device/repository"
	deviceservice "gym-frontdesk/backend/internal/device/service"
	"gym-frontdesk/backend/internal/frontdesk"
	healthhandler "gym-frontdesk/backend/internal/health/handler"
	identityservice "gym-frontdesk/backend/internal/identity/service"
	"gym-frontdesk/backend/internal/platformsettings/repository"
	"gym-frontdesk/backend/internal/policy/engine"
	"gym-frontdesk/backend/internal/security"
	"gym-frontdesk/backend/internal/server"
	sessionservice "gym-frontdesk/backend/internal/session/service"
	shiftdomain "gym-frontdesk/backend/internal/shift/domain"
	shiftrepo "gym-frontdesk/backend/internal/shift/repository"
	shiftservice "gym-frontdesk/backend/internal/shift/service"
	"gym-frontdesk/backend/internal/store/memory"
	"gym-frontdesk/backend/internal/telemetry"
	otelsetup "gym-frontdesk/backend/internal/telemetry/otel"
	"gym-frontdesk/backend/internal/telemetry/producer"
	userdomain "gym-frontdesk/backend/internal/user/domain"
	userrepo "gym-frontdesk/backend/internal/user/repository"
)

const (
	devAdminID      = "dev-admin"
	devTokenTTL     = 15 * time.Minute
	devRefreshTTL   = 8 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// backends is the storage the coordinator runs on: Postgres, or the in-memory store in development.
type backends struct {
	users    userrepo.Repository
	settings repository.Repository
	devices  devicerepo.Repository
	feed     devicerepo.Feed
	shifts   shiftrepo.Repository
	audit    auditrepo.Repository
	pinger   healthhandler.Pinger
	mem      *memory.Store
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	terminal := sessionservice.Terminal{
		Fingerprint: cfg.TerminalFingerprint,
		Description: cfg.TerminalDescription,
	}
	if terminal.Fingerprint == "" || terminal.Description == "" {
		host, _ := os.Hostname()
		if terminal.Fingerprint == "" {
			terminal.Fingerprint = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("frontdesk."+host)).String()
		}
		if terminal.Description == "" {
			terminal.Description = "front desk terminal " + host
		}
	}

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		InstanceID:  terminal.Fingerprint,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter("gym-frontdesk"))
	if err != nil {
		log.Fatalf("telemetry: metrics: %v", err)
	}

	emitters := telemetry.Multi{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("telemetry: kafka: %v", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Printf("telemetry: kafka sink enabled (topic %s)", cfg.TelemetryKafkaTopic)
	}

	be, err := openBackends(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	settings := be.settings
	if ttl := cfg.SettingsTTL(); ttl > 0 {
		settings = repository.NewCachedRepository(settings, ttl)
	}

	validator, issuer, err := buildTokens(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	auditLogger := audit.NewLogger(be.audit, terminal.Fingerprint)
	policy := engine.NewOPAEvaluator()
	provider := identityservice.NewTokenSessionProvider(validator, issuer)
	gate := deviceservice.NewGate(be.devices, settings, be.users, policy, auditLogger, emitters, cfg.ReuseWindow())
	processor := sessionservice.NewProcessor(provider, be.users, gate, terminal, cfg.ProfileTimeout(), auditLogger, emitters, metrics)
	watcher := deviceservice.NewWatcher(be.feed, be.devices)
	controller := shiftservice.NewController(be.shifts, emitters, metrics)
	guard := shiftservice.NewGuard(be.shifts, emitters, metrics)
	desk := frontdesk.New(provider, processor, watcher, controller, guard)

	grpcServer, healthServer := server.New()
	checker := healthhandler.NewChecker(be.pinger, policy, healthServer)

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)
	wg.Add(4)
	go func() {
		defer wg.Done()
		checker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		log.Printf("frontdesk: health server listening on %s", cfg.HealthGRPCAddr)
		if err := server.Serve(ctx, cfg.HealthGRPCAddr, grpcServer); err != nil {
			serveErr <- err
		}
	}()
	go func() {
		defer wg.Done()
		if err := desk.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("frontdesk: desk stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		logSnapshots(ctx, processor)
	}()

	var reviewer *deviceservice.Reviewer
	if be.mem != nil {
		reviewer = deviceservice.NewReviewer(be.devices, be.users, settings, auditLogger, emitters)
	}
	cli := &console{
		desk:     desk,
		provider: provider,
		issuer:   issuer,
		users:    be.users,
		reviewer: reviewer,
		ip:       localIP(),
	}
	lines := make(chan string)
	go readLines(os.Stdin, lines)

	log.Printf("frontdesk: terminal %s ready (type help)", terminal.Fingerprint)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serveErr:
			log.Printf("frontdesk: health server: %v", err)
			cancel()
		case line, ok := <-lines:
			if !ok || !cli.exec(ctx, line) {
				cancel()
			}
		}
	}

	log.Println("frontdesk: shutting down...")
	wg.Wait()
	gate.Drain()
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		log.Println("frontdesk: telemetry emits still running at shutdown")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("frontdesk: telemetry shutdown: %v", err)
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("frontdesk: kafka close: %v", err)
		}
	}
	be.close()
	log.Println("frontdesk: stopped")
}

// openBackends connects to Postgres, or builds a seeded in-memory store when DATABASE_URL is empty
// in development.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	if cfg.DatabaseURL == "" {
		log.Println("store: DATABASE_URL empty, using in-memory store (development)")
		mem := memory.New()
		err := mem.Users().Upsert(ctx, &userdomain.User{
			ID:          devAdminID,
			DisplayName: "Dev Admin",
			Role:        userdomain.RoleAdmin,
		})
		if err != nil {
			return nil, err
		}
		return &backends{
			users:    mem.Users(),
			settings: mem.Settings(),
			devices:  mem.Devices(),
			feed:     mem.Feed(),
			shifts:   mem.Shifts(),
			audit:    mem.Audit(),
			mem:      mem,
			close:    func() {},
		}, nil
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &backends{
		users:    userrepo.NewPostgresRepository(conn),
		settings: repository.NewPostgresRepository(conn),
		devices:  devicerepo.NewPostgresRepository(conn),
		feed:     devicerepo.NewPostgresFeed(cfg.DatabaseURL),
		shifts:   shiftrepo.NewPostgresRepository(conn),
		audit:    auditrepo.NewPostgresRepository(conn),
		pinger:   conn,
		close: func() {
			if err := conn.Close(); err != nil {
				log.Printf("store: close: %v", err)
			}
		},
	}, nil
}

// buildTokens returns the validator for provider tokens and, in development with an HMAC secret,
// an issuer so operators can sign in without an external provider.
func buildTokens(cfg *config.Config) (*security.TokenValidator, *security.TokenIssuer, error) {
	var (
		key security.Key
		err error
	)
	switch {
	case cfg.AuthJWTSecret != "":
		key, err = security.HMACKey(cfg.AuthJWTSecret)
	case cfg.AuthJWTPublicKey != "":
		key, err = security.PublicKey(cfg.AuthJWTPublicKey)
	default:
		return nil, nil, errors.New("one of AUTH_JWT_SECRET or AUTH_JWT_PUBLIC_KEY must be set")
	}
	if err != nil {
		return nil, nil, err
	}
	validator := security.NewTokenValidator(key, cfg.AuthJWTIssuer, cfg.AuthJWTAudience)
	if !cfg.IsDevelopment() || !key.CanSign() {
		return validator, nil, nil
	}
	issuer, err := security.NewTokenIssuer(key, cfg.AuthJWTIssuer, cfg.AuthJWTAudience, devTokenTTL, devRefreshTTL)
	if err != nil {
		return nil, nil, err
	}
	return validator, issuer, nil
}

func logSnapshots(ctx context.Context, processor *sessionservice.Processor) {
	snaps, unsubscribe := processor.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			s := snap.Session
			switch {
			case snap.Err != nil:
				log.Printf("session: signed out after %s: %v", snap.Event, snap.Err)
			case s.IsEmpty():
				log.Printf("session: signed out (%s)", snap.Event)
			default:
				log.Printf("session: %s (%s) device=%s request=%d", s.DisplayIdentity, s.Role, s.DeviceTrustState, s.PendingRequestID)
			}
		}
	}
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// localIP returns the first non-loopback IPv4 address, recorded on shifts started here.
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return ""
}

type console struct {
	desk     *frontdesk.Desk
	provider *identityservice.TokenSessionProvider
	issuer   *security.TokenIssuer
	users    userrepo.Repository
	reviewer *deviceservice.Reviewer
	ip       string
}

const helpText = `commands:
  token <access> [refresh]   sign in with provider tokens
  signin <user-id> [email]   sign in with a development token
  refresh                    refresh the provider session
  start                      start or resume a shift
  logout                     sign out if the logout guard allows it
  status                     show session and shift
  profile <id> <role> [name] create a profile (in-memory store)
  approve <request-id>       approve a device request (in-memory store)
  deny <request-id>          deny a device request (in-memory store)
  bypass on|off              disable or enable fingerprinting (in-memory store)
  quit`

// exec runs one command line. It returns false when the operator asked to quit.
func (c *console) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmdCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := c.run(cmdCtx, fields[0], fields[1:]); err != nil {
		if errors.Is(err, errQuit) {
			return false
		}
		fmt.Printf("error: %v\n", err)
	}
	return true
}

var errQuit = errors.New("quit")

func (c *console) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Println(helpText)
	case "quit", "exit":
		return errQuit
	case "token":
		if len(args) < 1 {
			return errors.New("usage: token <access> [refresh]")
		}
		refresh := ""
		if len(args) > 1 {
			refresh = args[1]
		}
		return c.provider.SignIn(ctx, args[0], refresh)
	case "signin":
		if c.issuer == nil {
			return errors.New("development sign-in needs APP_ENV=development and AUTH_JWT_SECRET")
		}
		if len(args) < 1 {
			return errors.New("usage: signin <user-id> [email]")
		}
		email := ""
		if len(args) > 1 {
			email = args[1]
		}
		return c.provider.SignInAs(ctx, args[0], email)
	case "refresh":
		return c.provider.RefreshNow(ctx)
	case "start":
		res, err := c.desk.StartWork(ctx, c.ip)
		if err != nil {
			return err
		}
		if res.Kind == shiftdomain.StartRejected {
			fmt.Printf("shift held by %s since %s (%s)\n", res.Conflict.ActiveCashierName,
				res.Conflict.ActiveShiftStartedAt.Local().Format(time.Kitchen), res.Conflict.ActiveCashierIP)
			return nil
		}
		fmt.Printf("shift %s %s\n", res.Shift.ID, res.Kind)
	case "logout":
		dec, err := c.desk.Logout(ctx)
		if err != nil {
			return err
		}
		if !dec.Allowed {
			fmt.Printf("logout blocked: %s\n", dec.Reason)
		}
	case "status":
		s := c.desk.Session()
		if s.IsEmpty() {
			fmt.Println("signed out")
			return nil
		}
		fmt.Printf("%s (%s) device=%s", s.DisplayIdentity, s.Role, s.DeviceTrustState)
		if id := c.desk.Watching(); id != 0 {
			fmt.Printf(" watching=%d", id)
		}
		if sh := c.desk.Shift(); sh != nil {
			fmt.Printf(" shift=%s", sh.ID)
		}
		fmt.Println()
	case "profile", "approve", "deny", "bypass":
		if c.reviewer == nil {
			return fmt.Errorf("%s is only available on the in-memory store; use cmd/admin", cmd)
		}
		return c.runDev(ctx, cmd, args)
	default:
		return fmt.Errorf("unknown command %q (type help)", cmd)
	}
	return nil
}

func (c *console) runDev(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "profile":
		if len(args) < 2 {
			return errors.New("usage: profile <id> <role> [name]")
		}
		u := &userdomain.User{ID: args[0], Role: userdomain.Role(args[1]), DisplayName: strings.Join(args[2:], " ")}
		if err := u.Validate(); err != nil {
			return err
		}
		return c.users.Upsert(ctx, u)
	case "approve", "deny":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s <request-id>", cmd)
		}
		var id int64
		if _, err := fmt.Sscan(args[0], &id); err != nil {
			return fmt.Errorf("invalid request id %q", args[0])
		}
		var err error
		if cmd == "approve" {
			_, err = c.reviewer.Approve(ctx, id, devAdminID, "approved at terminal")
		} else {
			_, err = c.reviewer.Deny(ctx, id, devAdminID, "denied at terminal")
		}
		return err
	case "bypass":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: bypass on|off")
		}
		return c.reviewer.SetFingerprinting(ctx, devAdminID, args[0] == "off")
	}
	return nil
}
