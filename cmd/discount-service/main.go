package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "discount-service",
	Short: "QR payment discount reservation service",
	Long: `Reserves voucher and monthly promo discounts before a QR payment is
created and settles them when the payment provider reports back.

Configuration is read from PROMO_* environment variables (and DB_* for
Postgres), optionally loaded from .env files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.AddCommand(runCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
