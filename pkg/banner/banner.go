package banner

import (
	"fmt"
	"strings"

	"mavenproxy/pkg/config"
)

const banner = `
███╗   ███╗ █████╗ ██╗   ██╗███████╗███╗   ██╗    ██████╗ ██████╗  ██████╗ ██╗  ██╗██╗   ██╗
████╗ ████║██╔══██╗██║   ██║██╔════╝████╗  ██║    ██╔══██╗██╔══██╗██╔═══██╗╚██╗██╔╝╚██╗ ██╔╝
██╔████╔██║███████║██║   ██║█████╗  ██╔██╗ ██║    ██████╔╝██████╔╝██║   ██║ ╚███╔╝  ╚████╔╝
██║╚██╔╝██║██╔══██║╚██╗ ██╔╝██╔══╝  ██║╚██╗██║    ██╔═══╝ ██╔══██╗██║   ██║ ██╔██╗   ╚██╔╝
██║ ╚═╝ ██║██║  ██║ ╚████╔╝ ███████╗██║ ╚████║    ██║     ██║  ██║╚██████╔╝██╔╝ ██╗   ██║
╚═╝     ╚═╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝╚═╝  ╚═══╝    ╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚═╝  ╚═╝   ╚═╝
`

// Print writes the startup banner with the effective configuration.
func Print(cfg *config.Config, addr, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:       %s\n", addr)
	fmt.Printf("Origins:      %s\n", strings.Join(cfg.Proxy.Origins, ", "))
	fmt.Printf("Workers:      %d (chunk %d bytes)\n", cfg.Workers(), cfg.ChunkSize())
	fmt.Printf("Compression:  %v\n", cfg.CompressionEnabled())
	if version != "" {
		fmt.Printf("Version:      %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET/HEAD /<group>/<artifact>/... - Proxy an artifact from the configured origins")
	fmt.Println("GET      /healthz                - Liveness probe")
	fmt.Println("GET      /readyz                 - Readiness probe")
	fmt.Println("GET      /metrics                - Prometheus metrics")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -O 'http://localhost%s/junit/junit/4.13.2/junit-4.13.2.jar'\n", portSuffix(addr))
}

func portSuffix(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return addr
}
