package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"factory/internal/codegen"
	"factory/internal/combine"
	"factory/internal/config"
	"factory/internal/journal"
	"factory/internal/registry"
	"factory/internal/scanner"
	"factory/internal/shared/observability"
	"factory/internal/tooldef"
	"factory/internal/typeres"
)

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	profile := fs.String("profile", "", "Profile name to write the registry under (required)")
	configPath, verbose := commonFlags(fs)
	_ = fs.Parse(args)
	setupLogging(*verbose)

	if fs.NArg() != 1 || *profile == "" {
		fmt.Fprintln(os.Stderr, "usage: factory scan <root> -profile <name>")
		return 2
	}
	root := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	sc, err := scanner.New(scanner.Options{
		ExcludeDirs:  cfg.Scan.ExcludeDirs,
		ExcludeFiles: cfg.Scan.ExcludeFiles,
		Workers:      cfg.Workers,
	})
	if err != nil {
		slog.Error("failed to initialize scanner", "error", err)
		return 1
	}

	started := time.Now()
	result, err := sc.ScanRoot(root)
	if err != nil {
		slog.Error("scan failed", "root", root, "error", err)
		return 1
	}

	resolver := typeres.New(sc, result.Root, result.Files)
	types, gaps := resolver.ResolveAll(result.Services)

	reg := &registry.Registry{
		Profile:      *profile,
		Language:     result.Language,
		SourceRoot:   result.Root,
		GeneratedAt:  time.Now().UTC(),
		GenerationID: uuid.NewString(),
		Services:     result.Services,
		Types:        types,
	}
	observability.ServicesDiscovered.Set(float64(reg.ServiceCount()))

	store := registry.NewStore(cfg.ProfilesDir)

	if existing, err := store.Load(*profile); err == nil && existing.IsMerged() {
		slog.Warn("profile holds a merged artifact; rescan skipped", "profile", *profile)
		return 0
	}

	if err := store.Save(reg); err != nil {
		if errors.Is(err, registry.ErrEmptyRescan) {
			slog.Warn("rescan found no services; keeping previous registry", "profile", *profile, "root", root)
			return 0
		}
		slog.Error("failed to write registry", "profile", *profile, "error", err)
		return 1
	}

	recordScan(cfg.JournalPath, reg, result, gaps)

	for _, warning := range result.Warnings {
		slog.Warn("scan warning", "file", warning.File, "message", warning.Message)
	}
	for _, gap := range gaps {
		slog.Warn("type resolution gap", "type", gap.TypeName, "referenced_by", gap.ReferencedBy, "file", gap.File)
	}
	slog.Info("scan complete",
		"profile", *profile,
		"root", result.Root,
		"language", reg.Language,
		"services", reg.ServiceCount(),
		"types", len(types),
		"warnings", len(result.Warnings),
		"gaps", len(gaps),
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return 0
}

func recordScan(journalPath string, reg *registry.Registry, result *scanner.Result, gaps []typeres.Gap) {
	store, err := journal.Open(journalPath)
	if err != nil {
		slog.Warn("scan journal unavailable", "path", journalPath, "error", err)
		return
	}
	defer store.Close()

	run := journal.Run{
		Profile:      reg.Profile,
		GenerationID: reg.GenerationID,
		SourceRoot:   reg.SourceRoot,
		Timestamp:    reg.GeneratedAt,
		FileCount:    len(result.Files),
		ServiceCount: reg.ServiceCount(),
		WarningCount: len(result.Warnings),
	}
	if err := store.RecordRun(run, gaps); err != nil {
		slog.Warn("failed to record scan run", "profile", reg.Profile, "error", err)
	}
}

func runGenerate(args []string) int {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	protocol := fs.String("protocol", "", "Protocol to generate: rest, stdio, stream or all")
	outDir := fs.String("out", "", "Output directory (default from config)")
	configPath, verbose := commonFlags(fs)
	_ = fs.Parse(args)
	setupLogging(*verbose)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: factory generate <profile> [-protocol rest|stdio|stream|all]")
		return 2
	}
	profile := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if *outDir == "" {
		*outDir = cfg.OutputDir
	}

	protocols, err := expandProtocols(*protocol, cfg.Generate.Protocols)
	if err != nil {
		slog.Error("invalid protocol selection", "error", err)
		return 2
	}

	store := registry.NewStore(cfg.ProfilesDir)
	reg, err := store.Load(profile)
	if err != nil {
		slog.Error("failed to load registry", "profile", profile, "error", err)
		return 1
	}

	docPath, err := tooldef.Locate(cfg.ProfilesDir, profile)
	if err != nil {
		slog.Error("no tool definitions", "profile", profile, "error", err)
		return 1
	}
	doc, err := tooldef.LoadFile(docPath)
	if err != nil {
		slog.Error("failed to load tool definitions", "path", docPath, "error", err)
		return 1
	}

	return generateModules(reg, doc, protocols, *outDir)
}

// generateModules builds and renders every requested protocol. Tools that
// fail to bind are reported and skipped; the run still fails at the end so
// callers notice, but every bindable tool has been generated.
func generateModules(reg *registry.Registry, doc *tooldef.Document, protocols []string, outDir string) int {
	renderer, err := codegen.NewRenderer(outDir)
	if err != nil {
		slog.Error("failed to initialize renderer", "error", err)
		return 1
	}

	failed := false
	for _, protocol := range protocols {
		mod, errs := codegen.Build(reg, doc, protocol)
		for _, buildErr := range errs {
			observability.BindingErrors.Inc()
			slog.Error("binding error", "profile", reg.Profile, "protocol", protocol, "error", buildErr)
			failed = true
		}
		if mod == nil {
			continue
		}

		path, err := renderer.Render(mod)
		if err != nil {
			slog.Error("failed to render module", "protocol", protocol, "error", err)
			failed = true
			continue
		}
		slog.Info("generated server module", "protocol", protocol, "path", path, "handlers", len(mod.Handlers))
	}

	if failed {
		return 1
	}
	return 0
}

func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	name := fs.String("name", "", "Profile name for the merged artifact (required)")
	sourcesFlag := fs.String("sources", "", "Comma-separated source profiles (required)")
	prefix := fs.String("prefix", "", "Collision policy: auto, always or none")
	protocol := fs.String("protocol", "", "Also generate modules for this protocol (rest, stdio, stream or all)")
	outDir := fs.String("out", "", "Output directory for generated modules")
	configPath, verbose := commonFlags(fs)
	_ = fs.Parse(args)
	setupLogging(*verbose)

	if *name == "" || *sourcesFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: factory merge -name <merged> -sources <a,b,...> [-prefix auto|always|none]")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if *prefix == "" {
		*prefix = cfg.Merge.Prefix
	}
	if *outDir == "" {
		*outDir = cfg.OutputDir
	}

	store := registry.NewStore(cfg.ProfilesDir)
	var sources []combine.Source
	for _, profile := range strings.Split(*sourcesFlag, ",") {
		profile = strings.TrimSpace(profile)
		if profile == "" {
			continue
		}
		reg, err := store.Load(profile)
		if err != nil {
			slog.Error("failed to load source registry", "profile", profile, "error", err)
			return 1
		}
		src := combine.Source{Registry: reg, Root: reg.SourceRoot}
		if docPath, err := tooldef.Locate(cfg.ProfilesDir, profile); err == nil {
			doc, err := tooldef.LoadFile(docPath)
			if err != nil {
				slog.Error("failed to load tool definitions", "profile", profile, "error", err)
				return 1
			}
			src.Document = doc
		}
		sources = append(sources, src)
	}

	merger := &combine.Merger{
		Name:         *name,
		Policy:       *prefix,
		ResolveTypes: resolveAcrossRoots(cfg),
	}
	merged, mergedDoc, err := merger.Merge(sources)
	if err != nil {
		slog.Error("merge failed", "name", *name, "error", err)
		return 1
	}
	merged.GeneratedAt = time.Now().UTC()
	merged.GenerationID = uuid.NewString()

	if err := store.SaveMerged(merged); err != nil {
		slog.Error("failed to write merged registry", "name", *name, "error", err)
		return 1
	}
	docPath := filepath.Join(cfg.ProfilesDir, *name+".tools.json")
	if err := tooldef.SaveFile(mergedDoc, docPath); err != nil {
		slog.Error("failed to write merged tool definitions", "name", *name, "error", err)
		return 1
	}

	for _, record := range merged.Collisions {
		slog.Warn("name collision resolved", "name", record.Name, "roots", record.Roots, "renamed_to", record.RenamedTo, "policy", record.Policy)
	}
	slog.Info("merge complete",
		"name", *name,
		"sources", merged.MergedFrom,
		"services", merged.ServiceCount(),
		"tools", len(mergedDoc.Tools),
		"collisions", len(merged.Collisions),
	)

	if *protocol == "" {
		return 0
	}
	protocols, err := expandProtocols(*protocol, nil)
	if err != nil {
		slog.Error("invalid protocol selection", "error", err)
		return 2
	}
	return generateModules(merged, mergedDoc, protocols, *outDir)
}

// resolveAcrossRoots re-runs the type resolver over every source root so
// composite types from all inputs are available in the merged context.
func resolveAcrossRoots(cfg *config.Config) func([]combine.Source, map[string]registry.ServiceSignature) (map[string]registry.CompositeType, []typeres.Gap) {
	return func(sources []combine.Source, _ map[string]registry.ServiceSignature) (map[string]registry.CompositeType, []typeres.Gap) {
		sc, err := scanner.New(scanner.Options{
			ExcludeDirs:  cfg.Scan.ExcludeDirs,
			ExcludeFiles: cfg.Scan.ExcludeFiles,
			Workers:      cfg.Workers,
		})
		if err != nil {
			slog.Warn("type re-resolution skipped", "error", err)
			return nil, nil
		}

		union := make(map[string]registry.CompositeType)
		var gaps []typeres.Gap
		for _, src := range sources {
			if src.Root == "" {
				continue
			}
			result, err := sc.ScanRoot(src.Root)
			if err != nil {
				slog.Warn("type re-resolution skipped for root", "root", src.Root, "error", err)
				continue
			}
			resolver := typeres.New(sc, result.Root, result.Files)
			types, srcGaps := resolver.ResolveAll(src.Registry.Services)
			gaps = append(gaps, srcGaps...)

			id := combine.RootID(src.Root, src.Registry.Profile)
			for name, ct := range types {
				if ct.Module != "" {
					ct.Module = combine.NamespaceModule(id, ct.Module, src.Registry.Language)
				}
				if _, exists := union[name]; !exists {
					union[name] = ct
				}
			}
		}
		return union, gaps
	}
}

func runTools(args []string) int {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	configPath, verbose := commonFlags(fs)
	_ = fs.Parse(args)
	setupLogging(*verbose)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: factory tools <profile>")
		return 2
	}
	profile := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	store := registry.NewStore(cfg.ProfilesDir)
	reg, err := store.Load(profile)
	if err != nil {
		slog.Error("failed to load registry", "profile", profile, "error", err)
		return 1
	}

	names := make([]string, 0, len(reg.Services))
	for name := range reg.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("profile %s (%s): %d services\n", reg.Profile, reg.Language, reg.ServiceCount())
	for _, name := range names {
		sig := reg.Services[name]
		owner := sig.Module
		if sig.OwnerType != "" {
			owner = owner + "." + sig.OwnerType
		}
		params := make([]string, 0, len(sig.Params))
		for _, p := range sig.Params {
			token := p.Name
			if p.Type != "" {
				token += ": " + p.Type
			}
			if p.Optional {
				token += "?"
			}
			params = append(params, token)
		}
		fmt.Printf("  %-30s %s.%s(%s)\n", name, owner, sig.Name, strings.Join(params, ", "))
		if sig.Meta.Description != "" {
			fmt.Printf("      %s\n", sig.Meta.Description)
		}
	}

	if docPath, err := tooldef.Locate(cfg.ProfilesDir, profile); err == nil {
		if doc, err := tooldef.LoadFile(docPath); err == nil {
			fmt.Printf("tool definitions: %d tools in %s\n", len(doc.Tools), docPath)
		}
	}
	return 0
}

// expandProtocols resolves the -protocol flag against the configured
// defaults. "all" expands to every concrete protocol.
func expandProtocols(selected string, configured []string) ([]string, error) {
	if selected == "" {
		if len(configured) == 0 {
			return []string{codegen.ProtocolStdio}, nil
		}
		selected = strings.Join(configured, ",")
	}
	if selected == "all" {
		return codegen.Protocols, nil
	}

	known := map[string]bool{}
	for _, p := range codegen.Protocols {
		known[p] = true
	}

	var out []string
	seen := map[string]bool{}
	for _, p := range strings.Split(selected, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if !known[p] {
			return nil, fmt.Errorf("unknown protocol %q (want rest, stdio, stream or all)", p)
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no protocol selected")
	}
	return out, nil
}
