// Command dpkg-architecture implements the two §6 enquiry subcommands:
// print-architecture and print-foreign-architectures. The process's own
// architecture registry (native plus any registered foreign architectures)
// is supplied on the command line, since registry persistence is an
// admin-directory concern outside this core's scope (spec.md §1).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dpkg-go/dpkgcore/arch"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: dpkg-architecture {print-architecture|print-foreign-architectures} <native> [foreign...]")
		os.Exit(2)
	}
	subcommand, native, foreign := os.Args[1], os.Args[2], os.Args[3:]

	reg := arch.NewRegistry(native)
	names := make([]string, 0, len(foreign))
	for _, f := range foreign {
		a := reg.Find(f)
		if a.Kind() == arch.KindIllegal {
			fmt.Fprintf(os.Stderr, "dpkg-architecture: %q is not a legal architecture name\n", f)
			os.Exit(2)
		}
		names = append(names, a.Name())
	}

	switch subcommand {
	case "print-architecture":
		fmt.Println(reg.Native().Name())
	case "print-foreign-architectures":
		fmt.Println(strings.Join(names, " "))
	default:
		fmt.Fprintf(os.Stderr, "dpkg-architecture: unknown subcommand %q\n", subcommand)
		os.Exit(2)
	}
}
