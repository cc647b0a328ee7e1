package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/credanchor/credanchor/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL string
	bearerToken string
	cfgFile     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "credctl",
	Short: "CredAnchor registry CLI",
	Long: `credctl is the command-line interface for the CredAnchor registry.

It verifies academic credentials against the ledger, issues new
credentials on behalf of an institution, and manages share links.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.credctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "http://localhost:8080"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.credctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "registry URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "identity provider bearer token")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	return client.New(registryURL, opts...)
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyFile   string
	verifyHash   string
	verifyQRTok  string
	verifyID     string
	verifyFormat string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a credential by document, hash, QR token, or identifier",
	Long: `Verify checks a credential against the registry and the ledger.

Exactly one lookup key must be given:

  credctl verify --file diploma.pdf
  credctl verify --hash 9f86d08...
  credctl verify --qr 0x4a1f...
  credctl verify --id 6f1a2b3c-...`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "Document file to hash and verify")
	verifyCmd.Flags().StringVar(&verifyHash, "hash", "", "Precomputed document hash")
	verifyCmd.Flags().StringVar(&verifyQRTok, "qr", "", "QR token")
	verifyCmd.Flags().StringVar(&verifyID, "id", "", "Credential or share identifier")
	verifyCmd.Flags().StringVar(&verifyFormat, "format", "text", "Output format: text or json")
}

func runVerify(cmd *cobra.Command, args []string) error {
	keys := 0
	for _, v := range []string{verifyFile, verifyHash, verifyQRTok, verifyID} {
		if v != "" {
			keys++
		}
	}
	if keys != 1 {
		return errors.New("exactly one of --file, --hash, --qr, --id is required")
	}

	c := newClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		result *client.VerifyResult
		err    error
	)
	switch {
	case verifyFile != "":
		doc, readErr := os.ReadFile(verifyFile)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", verifyFile, readErr)
		}
		result, err = c.VerifyDocument(ctx, doc)
	case verifyHash != "":
		result, err = c.VerifyHash(ctx, verifyHash)
	case verifyQRTok != "":
		result, err = c.VerifyQR(ctx, verifyQRTok)
	default:
		result, err = c.VerifyByID(ctx, verifyID)
	}
	if err != nil {
		return err
	}

	if verifyFormat == "json" {
		return printJSON(result)
	}

	if result.IsValid {
		fmt.Println("VALID")
	} else {
		fmt.Printf("INVALID (%s)\n", result.Reason)
	}
	if result.Credential != nil {
		fmt.Printf("  title:         %s\n", result.Credential.Title)
		fmt.Printf("  type:          %s\n", result.Credential.DocType)
		fmt.Printf("  institution:   %s\n", result.Credential.Institution)
		fmt.Printf("  status:        %s\n", result.Credential.Status)
		fmt.Printf("  tx ref:        %s\n", result.Credential.TxRef)
	}
	fmt.Printf("  confirmations: %d\n", result.Confirmations)
	fmt.Printf("  record id:     %s\n", result.RecordID)
	return nil
}

// ── issue ────────────────────────────────────────────────────────────────────

var (
	issueStudent     string
	issueTitle       string
	issueDocType     string
	issueInstitution string
	issueDescription string
	issueFile        string
	issuePublic      bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue and anchor a new credential (institution accounts)",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := os.ReadFile(issueFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", issueFile, err)
		}

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		cred, err := c.Issue(ctx, client.IssueRequest{
			StudentEmail: issueStudent,
			Title:        issueTitle,
			DocType:      issueDocType,
			Institution:  issueInstitution,
			Description:  issueDescription,
			Document:     doc,
			Public:       issuePublic,
		})
		if err != nil {
			return err
		}

		fmt.Printf("issued %s\n", cred.ID)
		fmt.Printf("  tx ref:       %s\n", cred.TxRef)
		fmt.Printf("  block height: %d\n", cred.BlockHeight)
		fmt.Printf("  content addr: %s\n", cred.ContentAddress)
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueStudent, "student", "", "Student email (required)")
	issueCmd.Flags().StringVar(&issueTitle, "title", "", "Credential title (required)")
	issueCmd.Flags().StringVar(&issueDocType, "type", "degree", "Document type: degree, certificate, transcript, diploma")
	issueCmd.Flags().StringVar(&issueInstitution, "institution", "", "Issuing institution name")
	issueCmd.Flags().StringVar(&issueDescription, "description", "", "Free-form description")
	issueCmd.Flags().StringVar(&issueFile, "file", "", "Document file to anchor (required)")
	issueCmd.Flags().BoolVar(&issuePublic, "public", false, "Make the credential publicly readable")
	_ = issueCmd.MarkFlagRequired("student")
	_ = issueCmd.MarkFlagRequired("title")
	_ = issueCmd.MarkFlagRequired("file")
}

// ── revoke ───────────────────────────────────────────────────────────────────

var revokeCmd = &cobra.Command{
	Use:   "revoke <credential-id>",
	Short: "Permanently revoke a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.Revoke(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("revoked %s\n", args[0])
		return nil
	},
}

// ── share ────────────────────────────────────────────────────────────────────

var (
	sharePassword string
	shareOneTime  bool
	shareMaxViews int
	shareTTL      time.Duration
	shareNotify   string
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Create and access credential share links",
}

var shareCreateCmd = &cobra.Command{
	Use:   "create <credential-id>",
	Short: "Create a share link for a credential you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := client.ShareLinkRequest{
			Password:    sharePassword,
			OneTimeUse:  shareOneTime,
			NotifyEmail: shareNotify,
		}
		if shareMaxViews > 0 {
			req.MaxViews = &shareMaxViews
		}
		if shareTTL > 0 {
			expires := time.Now().Add(shareTTL).UTC()
			req.ExpiresAt = &expires
		}

		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		link, err := c.CreateShareLink(ctx, args[0], req)
		if err != nil {
			return err
		}
		fmt.Printf("share id: %s\n", link.ShareID)
		fmt.Printf("link:     %s\n", link.Link)
		if link.ExpiresAt != nil {
			fmt.Printf("expires:  %s\n", link.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

var shareAccessCmd = &cobra.Command{
	Use:   "access <share-id>",
	Short: "Access a share link and print the shared credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		snap, err := c.AccessShareLink(ctx, args[0], sharePassword)
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

func init() {
	shareCreateCmd.Flags().StringVar(&sharePassword, "password", "", "Protect the link with a password")
	shareCreateCmd.Flags().BoolVar(&shareOneTime, "one-time", false, "Deactivate the link after a single view")
	shareCreateCmd.Flags().IntVar(&shareMaxViews, "max-views", 0, "Maximum number of views (0 = unlimited)")
	shareCreateCmd.Flags().DurationVar(&shareTTL, "ttl", 0, "Lifetime of the link (e.g. 72h); 0 = no expiry")
	shareCreateCmd.Flags().StringVar(&shareNotify, "email", "", "Email the link to this address")
	shareAccessCmd.Flags().StringVar(&sharePassword, "password", "", "Share link password")

	shareCmd.AddCommand(shareCreateCmd)
	shareCmd.AddCommand(shareAccessCmd)
}

// ── history ──────────────────────────────────────────────────────────────────

var (
	historyPage  int
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show your verification history",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		page, err := c.History(ctx, historyPage, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tMETHOD\tRESULT\tREASON\tCREDENTIAL")
		for _, rec := range page.Records {
			result := "invalid"
			if rec.Result {
				result = "valid"
			}
			credID := "-"
			if rec.CredentialID != nil {
				credID = *rec.CredentialID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.VerifiedAt.Format(time.RFC3339), rec.Method, result, rec.Reason, credID)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("page %d/%d (%d total)\n", page.PageNum, page.Pages, page.Total)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyPage, "page", 1, "Page number")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Records per page")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the credctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("credctl", version)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
