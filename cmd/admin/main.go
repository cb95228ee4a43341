// admin is the administrator CLI: it reviews device authorization requests, toggles fingerprinting,
// ends reconciled shifts, reads the audit trail and seeds development profiles.
//
//	admin [-as <admin-id>] <command> [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gym-frontdesk/backend/internal/audit"
	auditrepo "gym-frontdesk/backend/internal/audit/repository"
	"gym-frontdesk/backend/internal/config"
	"gym-frontdesk/backend/internal/db"
	devicerepo "gym-frontdesk/backend/internal/device/repository"
	deviceservice "gym-frontdesk/backend/internal/device/service"
	"gym-frontdesk/backend/internal/platformsettings/repository"
	"gym-frontdesk/backend/internal/security"
	shiftrepo "gym-frontdesk/backend/internal/shift/repository"
	shiftservice "gym-frontdesk/backend/internal/shift/service"
	userdomain "gym-frontdesk/backend/internal/user/domain"
	userrepo "gym-frontdesk/backend/internal/user/repository"
)

const usage = `usage: admin [-as <admin-id>] <command> [args]

commands:
  pending                         list pending device requests
  approve <request-id> [notes]    approve a device request
  deny <request-id> [notes]       deny a device request
  fingerprinting on|off           enable or disable device fingerprinting
  end-shift <shift-id>            end a reconciled shift
  audit [limit]                   show recent audit entries
  profile <id> <role> [name]      create or update a staff profile
  seed                            create development profiles
  token <user-id> [email]         print a development access token (AUTH_JWT_SECRET)`

const commandTimeout = 30 * time.Second

// devProfiles are created by "seed". Re-running seed updates them in place.
var devProfiles = []userdomain.User{
	{ID: "dev-admin", Email: "admin@gym.test", DisplayName: "Dev Admin", Role: userdomain.RoleAdmin},
	{ID: "dev-cashier", Email: "cashier@gym.test", DisplayName: "Casey Cashier", Role: userdomain.RoleCashier},
	{ID: "dev-reception", Email: "desk@gym.test", DisplayName: "Rey Reception", Role: userdomain.RoleReceptionist},
	{ID: "dev-trainer", Email: "trainer@gym.test", DisplayName: "Tam Trainer", Role: userdomain.RoleTrainer},
}

func main() {
	adminID := flag.String("as", "dev-admin", "administrator profile id performing the action")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if cmd == "token" {
		if err := printToken(cfg, args); err != nil {
			log.Fatalf("token: %v", err)
		}
		return
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	a := &admin{
		id:       *adminID,
		users:    userrepo.NewPostgresRepository(conn),
		auditLog: auditrepo.NewPostgresRepository(conn),
	}
	auditLogger := audit.NewLogger(a.auditLog, "admin-cli")
	a.reviewer = deviceservice.NewReviewer(devicerepo.NewPostgresRepository(conn), a.users,
		repository.NewPostgresRepository(conn), auditLogger, nil)
	a.closer = shiftservice.NewCloser(shiftrepo.NewPostgresRepository(conn), a.users, auditLogger)

	if err := a.run(ctx, cmd, args); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

type admin struct {
	id       string
	users    userrepo.Repository
	auditLog auditrepo.Repository
	reviewer *deviceservice.Reviewer
	closer   *shiftservice.Closer
}

func (a *admin) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "pending":
		reqs, err := a.reviewer.ListPending(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tFINGERPRINT\tREQUESTED\tDESCRIPTION")
		for _, r := range reqs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.UserID, r.Fingerprint,
				r.RequestedAt.Local().Format(time.DateTime), r.Description)
		}
		return w.Flush()
	case "approve", "deny":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s <request-id> [notes]", cmd)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid request id %q", args[0])
		}
		notes := strings.Join(args[1:], " ")
		if cmd == "approve" {
			_, err = a.reviewer.Approve(ctx, id, a.id, notes)
		} else {
			_, err = a.reviewer.Deny(ctx, id, a.id, notes)
		}
		if err != nil {
			return err
		}
		fmt.Printf("request %d %sd\n", id, cmd)
	case "fingerprinting":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: fingerprinting on|off")
		}
		return a.reviewer.SetFingerprinting(ctx, a.id, args[0] == "on")
	case "end-shift":
		if len(args) != 1 {
			return errors.New("usage: end-shift <shift-id>")
		}
		return a.closer.EndShift(ctx, a.id, args[0])
	case "audit":
		limit := 20
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid limit %q", args[0])
			}
			limit = n
		}
		entries, err := a.auditLog.ListRecent(ctx, limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tUSER\tACTION\tRESOURCE\tTERMINAL\tMETADATA")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime),
				e.UserID, e.Action, e.Resource, e.Terminal, e.Metadata)
		}
		return w.Flush()
	case "profile":
		if len(args) < 2 {
			return errors.New("usage: profile <id> <role> [name]")
		}
		u := &userdomain.User{ID: args[0], Role: userdomain.Role(args[1]), DisplayName: strings.Join(args[2:], " ")}
		if err := u.Validate(); err != nil {
			return err
		}
		return a.users.Upsert(ctx, u)
	case "seed":
		for i := range devProfiles {
			if err := a.users.Upsert(ctx, &devProfiles[i]); err != nil {
				return fmt.Errorf("upsert %s: %w", devProfiles[i].ID, err)
			}
		}
		log.Printf("seed: %d development profiles upserted", len(devProfiles))
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}

// printToken prints an access and refresh token pair for userID signed with AUTH_JWT_SECRET.
func printToken(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: token <user-id> [email]")
	}
	if !cfg.IsDevelopment() {
		return errors.New("tokens are only issued with APP_ENV=development")
	}
	key, err := security.HMACKey(cfg.AuthJWTSecret)
	if err != nil {
		return err
	}
	issuer, err := security.NewTokenIssuer(key, cfg.AuthJWTIssuer, cfg.AuthJWTAudience, time.Hour, 8*time.Hour)
	if err != nil {
		return err
	}
	email := ""
	if len(args) > 1 {
		email = args[1]
	}
	access, refresh, expiresAt, err := issuer.Issue(args[0], email)
	if err != nil {
		return err
	}
	fmt.Printf("access:  %s\nrefresh: %s\nexpires: %s\n", access, refresh, expiresAt.Local().Format(time.DateTime))
	return nil
}
