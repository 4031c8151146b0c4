package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/getmockd/interceptd/pkg/plugins"
)

// VersionOutput is the result of `interceptd version`.
type VersionOutput struct {
	Version string   `json:"version"`
	Commit  string   `json:"commit"`
	Date    string   `json:"date"`
	Go      string   `json:"go"`
	OS      string   `json:"os"`
	Arch    string   `json:"arch"`
	Plugins []string `json:"plugins"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show interceptd version and built-in plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := buildVersion()
		return printResult(cmd, out, func() {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "interceptd %s (%s, %s)\n", displayVersion(out.Version), out.Commit, out.Date)
			fmt.Fprintf(w, "%s %s/%s\n", out.Go, out.OS, out.Arch)
			fmt.Fprintf(w, "plugins: %s\n", strings.Join(out.Plugins, ", "))
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// buildVersion reports the ldflags variables, falling back to the VCS
// stamp go build embeds when they were not set.
func buildVersion() VersionOutput {
	out := VersionOutput{
		Version: Version,
		Commit:  Commit,
		Date:    BuildDate,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}
	for _, reg := range plugins.Builtins(plugins.Deps{}) {
		out.Plugins = append(out.Plugins, reg.Name)
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	if out.Version == "dev" && info.Main.Version != "" {
		out.Version = info.Main.Version
	}
	vcs := make(map[string]string)
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	if out.Commit == "none" && vcs["vcs.revision"] != "" {
		out.Commit = vcs["vcs.revision"]
	}
	if out.Date == "unknown" && vcs["vcs.time"] != "" {
		out.Date = vcs["vcs.time"]
	}
	if vcs["vcs.modified"] == "true" {
		out.Commit += "-dirty"
	}
	return out
}

// displayVersion prefixes release versions with "v".
func displayVersion(v string) string {
	if v == "" || v == "dev" || v == "(devel)" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
