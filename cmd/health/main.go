// Command health verifies the judging host: the sandbox binary, the
// chroot, and every registered language toolchain.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/felixcuello/cp-server/internal/environment"
	"github.com/felixcuello/cp-server/internal/judge"
	"github.com/felixcuello/cp-server/internal/langs"
)

type checkResult struct {
	unit    string
	ok      bool
	message string
}

func main() {
	registryPath := flag.String("languages", "languages.toml", "language registry file")
	flag.Parse()

	cfg, err := environment.ReadEnvConfig()
	if err != nil {
		color.Red("configuration error: %v", err)
		os.Exit(1)
	}

	results := []checkResult{
		checkNsjail(cfg.NsjailBinary),
		checkChroot(cfg.ChrootPath),
	}

	registry, err := langs.Load(*registryPath)
	if err != nil {
		results = append(results, checkResult{unit: "Languages", message: err.Error()})
	} else {
		for _, lang := range registry.All() {
			results = append(results, checkLanguage(cfg.ChrootPath, lang))
		}
	}

	failed := false
	for _, res := range results {
		if res.ok {
			color.Green("OKAY  %-20s %s", res.unit, res.message)
		} else {
			failed = true
			color.Red("FAIL  %-20s %s", res.unit, res.message)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func checkNsjail(binary string) checkResult {
	res := checkResult{unit: "nsjail"}
	info, err := os.Stat(binary)
	if err != nil {
		res.message = err.Error()
		return res
	}
	if info.Mode()&0o111 == 0 {
		res.message = fmt.Sprintf("%s is not executable", binary)
		return res
	}
	res.ok = true
	res.message = binary
	return res
}

func checkChroot(path string) checkResult {
	res := checkResult{unit: "chroot"}
	info, err := os.Stat(path)
	if err != nil {
		res.message = err.Error()
		return res
	}
	if !info.IsDir() {
		res.message = fmt.Sprintf("%s is not a directory", path)
		return res
	}
	res.ok = true
	res.message = path
	return res
}

// checkLanguage verifies the toolchain placement the runner expects:
// compilers run on the host, interpreters run inside the chroot.
func checkLanguage(chrootPath string, lang judge.Language) checkResult {
	res := checkResult{unit: lang.Name}
	if lang.Compiled() {
		path, err := exec.LookPath(lang.CompilerBinary)
		if err != nil {
			res.message = fmt.Sprintf("compiler %s not found on host: %v", lang.CompilerBinary, err)
			return res
		}
		res.ok = true
		res.message = path
		return res
	}

	inChroot := filepath.Join(chrootPath, lang.InterpreterBinary)
	if _, err := os.Stat(inChroot); err != nil {
		res.message = fmt.Sprintf("interpreter %s not found in chroot: %v", lang.InterpreterBinary, err)
		return res
	}
	res.ok = true
	res.message = inChroot
	return res
}
