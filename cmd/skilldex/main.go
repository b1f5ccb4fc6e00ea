package main

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/skilldex-dev/skilldex/pkg/client"
	"github.com/skilldex-dev/skilldex/pkg/installdb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultRegistryURL = "https://registry.skilldex.dev"
	defaultFrontendURL = "https://skilldex.dev"
)

var (
	registryURL string
	frontendURL string
	cfgFile     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "skilldex",
	Short: "Skilldex registry CLI",
	Long: `skilldex is the command-line interface for the Skilldex skill registry.

It searches the public catalog, installs skills into your agent's skill
directory, and manages your registry login.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.skilldex")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			if dir, err := installdb.ConfigDir(); err == nil {
				if s, err := installdb.LoadSettings(dir); err == nil && s.RegistryURL != "" {
					registryURL = s.RegistryURL
				}
			}
		}
		if registryURL == "" {
			registryURL = defaultRegistryURL
		}
		if frontendURL == "" {
			frontendURL = viper.GetString("frontend_url")
		}
		if frontendURL == "" {
			frontendURL = defaultFrontendURL
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.skilldex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "Skilldex registry URL (default "+defaultRegistryURL+")")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds a registry client carrying stored credentials when
// available. An expired access token is rotated through the refresh token
// first; a dead refresh token silently degrades to anonymous access.
func newClient(ctx context.Context) *client.Client {
	c := client.New(registryURL)
	dir, err := installdb.ConfigDir()
	if err != nil {
		return c
	}
	auth, err := installdb.LoadAuth(dir)
	if err != nil || auth.AccessToken == "" {
		return c
	}

	if time.Now().Before(auth.AccessExpiresAt) {
		c.SetBearerToken(auth.AccessToken)
		return c
	}
	if auth.RefreshToken == "" || time.Now().After(auth.RefreshExpiresAt) {
		return c
	}

	pair, err := c.RefreshToken(ctx, auth.RefreshToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: session refresh failed, continuing anonymously: %v\n", err)
		return client.New(registryURL)
	}
	saveTokenPair(dir, pair, auth.Username)
	return c
}

func saveTokenPair(dir string, pair *client.TokenPair, fallbackUsername string) {
	auth := &installdb.Auth{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  time.Now().Add(time.Duration(pair.ExpiresIn) * time.Second),
		RefreshExpiresAt: time.Now().Add(time.Duration(pair.RefreshExpiresIn) * time.Second),
		Username:         fallbackUsername,
	}
	if pair.User != nil {
		auth.Username = pair.User.Username
	}
	if err := installdb.SaveAuth(dir, auth); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not persist credentials: %v\n", err)
	}
}

// ── search ───────────────────────────────────────────────────────────────────

var (
	searchCategory string
	searchLimit    int
	searchPrivate  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the skill catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}

		ctx := context.Background()
		c := newClient(ctx)
		result, err := c.Search(ctx, client.SearchParams{
			Query:          query,
			Category:       searchCategory,
			Limit:          searchLimit,
			IncludePrivate: searchPrivate,
		})
		if err != nil {
			return err
		}
		if len(result.Skills) == 0 {
			fmt.Println("no skills found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tSTARS\tCATEGORIES\tDESCRIPTION")
		for _, s := range result.Skills {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				s.Slug, s.Stars, strings.Join(s.Categories, ","), truncate(s.Description, 60))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d of %d result(s)\n", len(result.Skills), result.Total)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Filter by category slug")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	searchCmd.Flags().BoolVar(&searchPrivate, "private", false, "Include your private skills (requires login)")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ── show ─────────────────────────────────────────────────────────────────────

var showContent bool

var showCmd = &cobra.Command{
	Use:   "show <slug | @owner/name>",
	Short: "Show a skill's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c := newClient(ctx)
		doc, err := c.GetSkillByIdentifier(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Name:        %s\n", doc.Name)
		fmt.Printf("Description: %s\n", doc.Description)
		fmt.Printf("Repository:  %s/%s\n", doc.Owner, doc.Repo)
		fmt.Printf("Stars:       %d\n", doc.Stars)
		fmt.Printf("Updated:     %s\n", doc.UpdatedAt)
		fmt.Printf("Categories:  %s\n", strings.Join(doc.Categories, ", "))
		if doc.GithubURL != "" {
			fmt.Printf("URL:         %s\n", doc.GithubURL)
		}
		if showContent {
			fmt.Printf("\n%s\n", doc.Content)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showContent, "content", false, "Print the full skill document")
}

// ── categories ───────────────────────────────────────────────────────────────

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List catalog categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cats, err := newClient(ctx).Categories(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tNAME\tKIND\tSKILLS")
		for _, cat := range cats {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", cat.Slug, cat.Name, cat.Kind, cat.SkillCount)
		}
		return w.Flush()
	},
}

// ── install ──────────────────────────────────────────────────────────────────

var (
	installGlobal bool
	installAgent  string
)

var installCmd = &cobra.Command{
	Use:   "install <slug>",
	Short: "Install a skill from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := args[0]
		ctx := context.Background()
		c := newClient(ctx)

		doc, err := c.GetSkillByIdentifier(ctx, slug)
		if err != nil {
			return err
		}
		archive, err := c.Download(ctx, slug)
		if err != nil {
			return err
		}

		dir, err := skillInstallDir(doc.Name, installGlobal)
		if err != nil {
			return err
		}
		contentHash, err := extractArchive(archive, dir)
		if err != nil {
			return err
		}

		cfgDir, err := installdb.ConfigDir()
		if err != nil {
			return err
		}
		dbPath := filepath.Join(cfgDir, "installed.json")
		db, err := installdb.Load(dbPath)
		if err != nil {
			return err
		}

		agent := installAgent
		if agent == "" {
			if s, err := installdb.LoadSettings(cfgDir); err == nil && s.DefaultAgent != "" {
				agent = s.DefaultAgent
			} else {
				agent = installdb.DefaultAgent
			}
		}

		db.Upsert(installdb.InstalledSkill{
			Name:           doc.Name,
			Description:    doc.Description,
			Source:         doc.Owner + "/" + doc.Repo,
			RegistrySlug:   slug,
			UpdateStrategy: installdb.DefaultUpdateStrategy,
			Agents:         []string{agent},
			Global:         installGlobal,
			InstalledAt:    time.Now().UTC(),
			Path:           dir,
			ContentHash:    contentHash,
		})
		if err := installdb.Save(dbPath, db); err != nil {
			return err
		}

		fmt.Printf("installed %s → %s\n", slug, dir)
		return nil
	},
}

func init() {
	installCmd.Flags().BoolVar(&installGlobal, "global", false, "Install into the user-wide skill directory")
	installCmd.Flags().StringVar(&installAgent, "agent", "", "Target agent (default from settings)")
}

func skillInstallDir(name string, global bool) (string, error) {
	base := "."
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		base = home
	}
	return filepath.Join(base, ".claude", "skills", name), nil
}

// extractArchive writes the archive's files under dir and returns the hex
// SHA-256 of the skill document.
func extractArchive(archive []byte, dir string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create skill dir: %w", err)
	}

	var contentHash string
	for _, f := range zr.File {
		// Flat archives only; reject traversal.
		name := filepath.Base(f.Name)
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s in archive: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s in archive: %w", f.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		if name == "SKILL.md" {
			sum := sha256.Sum256(data)
			contentHash = hex.EncodeToString(sum[:])
		}
	}
	return contentHash, nil
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgDir, err := installdb.ConfigDir()
		if err != nil {
			return err
		}
		db, err := installdb.Load(filepath.Join(cfgDir, "installed.json"))
		if err != nil {
			return err
		}
		if len(db.Skills) == 0 {
			fmt.Println("no skills installed")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tSCOPE\tINSTALLED\tPATH")
		for _, s := range db.Skills {
			scope := "local"
			if s.Global {
				scope = "global"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.Name, s.Source, scope, s.InstalledAt.Format("2006-01-02"), s.Path)
		}
		return w.Flush()
	},
}

// ── uninstall ────────────────────────────────────────────────────────────────

var uninstallSource string

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <name>",
	Short: "Remove an installed skill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfgDir, err := installdb.ConfigDir()
		if err != nil {
			return err
		}
		dbPath := filepath.Join(cfgDir, "installed.json")
		db, err := installdb.Load(dbPath)
		if err != nil {
			return err
		}

		matches := db.FindByName(name)
		if len(matches) == 0 {
			return fmt.Errorf("skill %q is not installed", name)
		}
		var entry *installdb.InstalledSkill
		if uninstallSource != "" {
			if entry = db.Find(name, uninstallSource); entry == nil {
				return fmt.Errorf("skill %q is not installed from %q", name, uninstallSource)
			}
		} else if len(matches) > 1 {
			sources := make([]string, len(matches))
			for i, m := range matches {
				sources[i] = m.Source
			}
			return fmt.Errorf("skill %q is installed from multiple sources (%s); pick one with --source",
				name, strings.Join(sources, ", "))
		} else {
			entry = matches[0]
		}

		if entry.Path != "" {
			if err := os.RemoveAll(entry.Path); err != nil {
				return fmt.Errorf("remove %s: %w", entry.Path, err)
			}
		}
		db.Remove(entry.Name, entry.Source)
		if err := installdb.Save(dbPath, db); err != nil {
			return err
		}
		fmt.Printf("uninstalled %s\n", name)
		return nil
	},
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallSource, "source", "", "Disambiguate when the name is installed from multiple sources")
}

// ── favorite ─────────────────────────────────────────────────────────────────

var favoriteRemove bool

var favoriteCmd = &cobra.Command{
	Use:   "favorite <slug>",
	Short: "Favorite or unfavorite a skill (requires login)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := newClient(ctx).Favorite(ctx, args[0], !favoriteRemove); err != nil {
			return err
		}
		if favoriteRemove {
			fmt.Printf("removed favorite %s\n", args[0])
		} else {
			fmt.Printf("favorited %s\n", args[0])
		}
		return nil
	},
}

func init() {
	favoriteCmd.Flags().BoolVar(&favoriteRemove, "remove", false, "Remove the favorite instead")
}

// ── login / logout ───────────────────────────────────────────────────────────

var loginTimeout time.Duration

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the registry via your browser",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "How long to wait for browser approval")
	rootCmd.PersistentFlags().StringVar(&frontendURL, "frontend", "", "Skilldex web frontend URL (default "+defaultFrontendURL+")")
}

type callbackResult struct {
	code  string
	state string
	err   error
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	// Loopback listener on an ephemeral port receives the auth code once the
	// browser approval lands.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("open callback listener: %w", err)
	}
	defer ln.Close()
	callbackURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())

	state, err := randomState()
	if err != nil {
		return err
	}

	c := client.New(registryURL)
	hostname, _ := os.Hostname()
	session, err := c.InitAuth(ctx, callbackURL, state, "skilldex-cli "+version+" on "+hostname)
	if err != nil {
		return fmt.Errorf("start auth session: %w", err)
	}

	results := make(chan callbackResult, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Login complete — you can close this tab and return to the terminal.")
		results <- callbackResult{code: q.Get("code"), state: q.Get("state")}
	})}
	go srv.Serve(ln) //nolint:errcheck
	defer srv.Close()

	approveURL := fmt.Sprintf("%s/cli/authorize?session=%s", frontendURL, session.SessionID)
	fmt.Printf("To log in, open this URL in your browser:\n\n  %s\n\nWaiting for approval", approveURL)
	fmt.Printf(" (expires in %ds)...\n", session.ExpiresIn)

	var result callbackResult
	select {
	case result = <-results:
	case <-ctx.Done():
		return errors.New("timed out waiting for browser approval")
	}
	if result.state != state {
		return errors.New("callback state mismatch — aborting login")
	}

	pair, err := c.ExchangeCode(ctx, session, result.code)
	if err != nil {
		return fmt.Errorf("exchange auth code: %w", err)
	}

	cfgDir, err := installdb.ConfigDir()
	if err != nil {
		return err
	}
	saveTokenPair(cfgDir, pair, "")

	if pair.User != nil {
		fmt.Printf("logged in as %s\n", pair.User.Username)
	} else {
		fmt.Println("logged in")
	}
	return nil
}

func randomState() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgDir, err := installdb.ConfigDir()
		if err != nil {
			return err
		}
		if err := installdb.SaveAuth(cfgDir, &installdb.Auth{}); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skilldex %s\n", version)
	},
}
