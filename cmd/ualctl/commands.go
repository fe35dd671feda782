package main

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/ual/internal/agent"
	"github.com/danmuck/ual/internal/atlas"
	"github.com/danmuck/ual/internal/config"
	"github.com/danmuck/ual/internal/message"
	"github.com/danmuck/ual/internal/protocol"
	"github.com/danmuck/ual/internal/registry"
	"github.com/danmuck/ual/internal/signing"
	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	agentID    string
	keyFile    string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "ualctl",
		Short:         "Encode, decode and inspect UAL envelopes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("UAL_CONFIG"), "ualctl TOML config")
	root.PersistentFlags().StringVar(&c.agentID, "agent", "", "agent id (overrides config)")
	root.PersistentFlags().StringVar(&c.keyFile, "key", "", "Ed25519 key file (overrides config)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "JSON output")

	root.AddCommand(
		c.encodeCmd(),
		c.decodeCmd(),
		c.inspectCmd(),
		c.handshakeCmd(),
		c.keygenCmd(),
		c.atlasCmd(),
		c.registryCmd(),
		c.initCmd(),
	)
	return root
}

func (c *cli) settings() (agent.Config, error) {
	cfg, err := loadAgentConfig(c.configPath)
	if err != nil {
		return agent.Config{}, err
	}
	if c.agentID != "" {
		cfg.AgentID = c.agentID
	}
	if c.keyFile != "" {
		cfg.KeyFile = expandHome(c.keyFile)
	}
	return cfg, nil
}

func (c *cli) open(mutate ...func(*agent.Config)) (*agent.Agent, error) {
	cfg, err := c.settings()
	if err != nil {
		return nil, err
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return agent.Open(cfg)
}

func (c *cli) encodeCmd() *cobra.Command {
	var (
		to, contextID, out, embedFile string
		delta                         bool
	)
	cmd := &cobra.Command{
		Use:   "encode TEXT...",
		Short: "Compile text into a signed envelope",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			embeddings, err := readEmbeddings(embedFile)
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			frame, err := a.Codec.Encode(cmd.Context(), strings.Join(args, " "), to, contextID, embeddings, delta)
			if err != nil {
				return err
			}
			return writeEnvelope(cmd.OutOrStdout(), out, frame)
		},
	}
	cmd.Flags().StringVar(&to, "to", message.Broadcast, "receiver agent id")
	cmd.Flags().StringVar(&contextID, "context", "", "conversation context id")
	cmd.Flags().BoolVar(&delta, "delta", false, "send a delta against this process's last graph for the receiver")
	cmd.Flags().StringVar(&embedFile, "embeddings", "", "JSON file mapping concept names to vectors")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the raw envelope to a file instead of base64 to stdout")
	return cmd
}

func (c *cli) decodeCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "decode [FILE]",
		Short: "Verify and decode an envelope (raw or base64; stdin when FILE is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := readEnvelope(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			a, err := c.open(func(cfg *agent.Config) {
				cfg.StrictSignatures = cfg.StrictSignatures || strict
			})
			if err != nil {
				return err
			}
			defer a.Close()
			decoded, err := a.Codec.Decode(cmd.Context(), frame)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return outputJSON(cmd.OutOrStdout(), decoded)
			}
			return printDecoded(cmd.OutOrStdout(), decoded)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "reject envelopes that fail verification")
	return cmd
}

func (c *cli) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [FILE]",
		Short: "Show an envelope's frame, fields and payload without verifying it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := readEnvelope(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			in, err := message.Inspect(frame)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return outputJSON(cmd.OutOrStdout(), in)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "type:      %s (v%d, seq %d)\n", in.Type, in.Version, in.Sequence)
			fmt.Fprintf(w, "flags:     %s\n", strings.Join(in.Flags, ","))
			fmt.Fprintf(w, "algorithm: %s\n", in.Algorithm)
			for _, f := range in.Fields {
				fmt.Fprintf(w, "  %3d %-16s len=%-5d %s\n", f.ID, f.Name, f.Length, f.Value)
			}
			fmt.Fprintf(w, "payload:   %s\n", in.Payload)
			return nil
		},
	}
}

func (c *cli) handshakeCmd() *cobra.Command {
	var (
		caps, namespaces []string
		power            int64
		out              string
	)
	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Create a broadcast handshake advertising this agent's key and namespaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("ns") {
				namespaces = a.Atlas.Active()
			}
			frame, err := a.Codec.CreateHandshake(cmd.Context(), caps, power, namespaces)
			if err != nil {
				return err
			}
			return writeEnvelope(cmd.OutOrStdout(), out, frame)
		},
	}
	cmd.Flags().StringSliceVar(&caps, "caps", nil, "capabilities to advertise")
	cmd.Flags().StringSliceVar(&namespaces, "ns", nil, "namespaces to advertise (default: active namespaces)")
	cmd.Flags().Int64Var(&power, "power", message.DefaultComputePower, "advertised compute power")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the raw envelope to a file instead of base64 to stdout")
	return cmd
}

func (c *cli) keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create an Ed25519 key and print its authorized_keys line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.settings()
			if err != nil {
				return err
			}
			if cfg.KeyFile == "" {
				return errors.New("keygen: --key or key_file is required")
			}
			var signer *signing.Ed25519Signer
			if _, statErr := os.Stat(cfg.KeyFile); statErr == nil && !force {
				signer, err = signing.LoadPrivateKey(cfg.KeyFile)
			} else {
				signer, err = signing.GenerateEd25519()
				if err == nil {
					err = signing.SavePrivateKey(cfg.KeyFile, signer.PrivateKey(), cfg.AgentID)
				}
			}
			if err != nil {
				return err
			}
			line, err := signing.AuthorizedKey(signer.PublicKey(), cfg.AgentID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")
	return cmd
}

func (c *cli) atlasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atlas",
		Short: "Query the semantic atlas",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resolve NAME",
		Short: "Map a concept name to its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			id, ok := a.Atlas.Resolve(args[0])
			if !ok {
				return fmt.Errorf("atlas: %q not found", args[0])
			}
			name, _ := a.Atlas.Describe(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, name, atlas.CategoryOf(id))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "describe ID",
		Short: "Map a concept id (decimal or 0x hex) to its name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := atlas.ParseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			name, ok := a.Atlas.Describe(id)
			if !ok {
				return fmt.Errorf("atlas: %s not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, name, atlas.CategoryOf(id))
			return nil
		},
	})
	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List visible concepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open()
			if err != nil {
				return err
			}
			defer a.Close()
			var rows []atlas.Concept
			for _, concept := range a.Atlas.Concepts() {
				if category == "" || concept.Category == category {
					rows = append(rows, concept)
				}
			}
			if c.jsonOut {
				return outputJSON(cmd.OutOrStdout(), rows)
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-10s\t%s\t%s\n", r.ID, r.Category, r.Name, strings.Join(r.Aliases, ","))
			}
			return nil
		},
	}
	list.Flags().StringVar(&category, "category", "", "only list this category")
	cmd.AddCommand(list)
	return cmd
}

func (c *cli) registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the persistent concept registry",
	}
	withRegistry := func(fn func(cmd *cobra.Command, r *registry.Registry, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := c.settings()
			if err != nil {
				return err
			}
			if cfg.RegistryPath == "" {
				return errors.New("registry: registry_path is not configured")
			}
			r, err := registry.Open(registry.Config{Path: cfg.RegistryPath, SyncWrites: true})
			if err != nil {
				return err
			}
			defer r.Close()
			return fn(cmd, r, args)
		}
	}

	var namespace string
	register := &cobra.Command{
		Use:   "register NAME ID",
		Short: "Register a standard concept, or an industry concept with --ns",
		Args:  cobra.ExactArgs(2),
		RunE: withRegistry(func(cmd *cobra.Command, r *registry.Registry, args []string) error {
			id, err := atlas.ParseID(args[1])
			if err != nil {
				return err
			}
			if namespace != "" {
				return r.RegisterIndustry(namespace, args[0], id)
			}
			return r.RegisterStandard(args[0], id)
		}),
	}
	register.Flags().StringVar(&namespace, "ns", "", "industry namespace")

	cmd.AddCommand(register,
		&cobra.Command{
			Use:   "private NAME",
			Short: "Define a private concept with a name-derived id",
			Args:  cobra.ExactArgs(1),
			RunE: withRegistry(func(cmd *cobra.Command, r *registry.Registry, args []string) error {
				id, err := r.DefinePrivate(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List registry entries",
			Args:  cobra.NoArgs,
			RunE: withRegistry(func(cmd *cobra.Command, r *registry.Registry, args []string) error {
				entries, err := r.Entries()
				if err != nil {
					return err
				}
				if c.jsonOut {
					return outputJSON(cmd.OutOrStdout(), entries)
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-8s\t%s\t%s\n", e.ID, e.Kind, e.Name, e.Namespace)
				}
				return nil
			}),
		},
	)
	return cmd
}

func (c *cli) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init PATH",
		Short: "Write a ualctl config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], "cli", force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func readEmbeddings(path string) (map[string][]float32, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string][]float32
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("embeddings %s: %w", path, err)
	}
	return out, nil
}

// readEnvelope accepts a raw frame or its base64 text.
func readEnvelope(stdin io.Reader, args []string) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, err
	}
	if isFrame(raw) {
		return raw, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("envelope is neither a frame nor base64: %w", err)
	}
	return decoded, nil
}

func isFrame(b []byte) bool {
	return len(b) >= int(protocol.HeaderSize) && binary.BigEndian.Uint32(b) == protocol.Magic
}

func writeEnvelope(w io.Writer, path string, frame []byte) error {
	if path != "" {
		return os.WriteFile(path, frame, 0o644)
	}
	_, err := fmt.Fprintln(w, base64.StdEncoding.EncodeToString(frame))
	return err
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDecoded(w io.Writer, d *message.Decoded) error {
	verified := "verified"
	if !d.Verified {
		verified = "UNVERIFIED"
	}
	fmt.Fprintf(w, "%s %s -> %s [%s, %s]\n", d.Type, d.Sender, d.Receiver, verified, d.MessageID)
	if d.Handshake != nil {
		fmt.Fprintf(w, "capabilities: %s\n", strings.Join(d.Handshake.Capabilities, ", "))
		fmt.Fprintf(w, "namespaces:   %s\n", strings.Join(d.Handshake.Namespaces, ", "))
		fmt.Fprintf(w, "compute:      %d\n", d.Handshake.ComputePower)
		return nil
	}
	fmt.Fprintf(w, "%s\n", d.NaturalLanguage)
	fmt.Fprintf(w, "nodes=%d edges=%d urgency=%.2f delta=%t\n", len(d.Nodes), len(d.Edges), d.Urgency, d.IsDelta)
	if d.Partial {
		fmt.Fprintln(w, "partial: sender state missing, graph holds only changed nodes")
	}
	return nil
}
