package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sensen312/GobTrades-sub000/internal/engine"
	"github.com/sensen312/GobTrades-sub000/internal/session"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		engine.Module(engine.Params{Profile: profile}),
	)

	app.Run()
}
