// ddb is a CLI for inspecting DynamoDB table schemas and running typed
// queries against them.
//
// # Installation
//
//	go install github.com/acksell/ddbq/dynamodb/cmd/ddb@latest
//
// # Commands
//
//	ddb describe   Print the tables of a schema file
//	ddb query      Compile predicates and run them as a Query, GetItem or Scan
//	ddb version    Print the version
//
// # Configuration
//
// Defaults are read from ddb.yaml, searched from the working directory up
// to the filesystem root:
//
//	schema: ./tables.yaml
//	region: eu-west-1
//	endpoint: http://localhost:8000
//	log:
//	  level: debug
//	  format: console
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/acksell/ddbq/dynamodb/logging"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddb: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(logging.FromEnv(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddb: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "describe":
		err = runDescribe(cfg, args, os.Stdout)
	case "query":
		err = runQuery(cfg, log, args, os.Stdout)
	case "help", "-h", "--help":
		printUsage()
		return
	case "version", "-v", "--version":
		fmt.Printf("ddb version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "ddb: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("command", cmd).Msg("command failed")
		fmt.Fprintf(os.Stderr, "ddb %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ddb - DynamoDB typed query tools

Usage:
  ddb <command> [flags]

Commands:
  describe  Print tables, columns and indices of a schema file
  query     Run predicates against a table or index
  version   Print the version

Examples:
  ddb describe --schema tables.yaml
  ddb query --table products --where id=p1 --where 'price>10'
  ddb query --table products --index by_category --where category=shoes --dry-run

Configuration (optional):
  Create ddb.yaml for defaults:

    schema: ./tables.yaml          # table schema file
    region: eu-west-1              # AWS region
    endpoint: http://localhost:8000
    log:
      level: info
      format: console

Run 'ddb <command> --help' for more information on a command.`)
}
