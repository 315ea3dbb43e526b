package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/golden"
	"github.com/spf13/cobra"
)

var goldenInput golden.Input

// golden 离线预览金号，不连接数据库
var goldenCmd = &cobra.Command{
	Use:   "golden",
	Short: "Preview the golden number for the given inputs",
	Example: `  amb-mes golden --product 0227 --work-order MFG-WO-2024-00042 --year 2024 --plant 1
  amb-mes golden --product 0612 --consecutive 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults := golden.DefaultDefaults()
		if cfg, err := loadConfig(); err == nil {
			defaults = cfg.Golden
		}
		name, resolved := golden.Generate(goldenInput, defaults, time.Now())
		fmt.Fprintln(cmd.OutOrStdout(), name)
		if len(resolved.Defaulted) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "defaulted: %s\n", strings.Join(resolved.Defaulted, ","))
		}
		return nil
	},
}

func init() {
	f := goldenCmd.Flags()
	f.StringVar(&goldenInput.ProductCode, "product", "", "product code (first 4 characters used)")
	f.StringVar(&goldenInput.WorkOrder, "work-order", "", "work order; trailing digits give the consecutive")
	f.StringVar(&goldenInput.Consecutive, "consecutive", "", "explicit consecutive number")
	f.StringVar(&goldenInput.Year, "year", "", "2 or 4 digit year")
	f.StringVar(&goldenInput.Plant, "plant", "", "plant digit")
	rootCmd.AddCommand(goldenCmd)
}
