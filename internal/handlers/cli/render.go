package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gabapcia/swapbundle/internal/bundle"
	"github.com/gabapcia/swapbundle/internal/quote"
	"github.com/gabapcia/swapbundle/internal/status"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

// renderPlan prints one row per wallet with its public key, known balance,
// spend and estimate, followed by the bundle total.
func renderPlan(out io.Writer, b *bundle.Bundle) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "WALLET\tPUBLIC KEY\tBALANCE (SOL)\tSPEND (SOL)\tESTIMATE")

	for _, w := range b.Wallets() {
		pub := "-"
		if pk, ok := w.PublicKey(); ok {
			pub = pk.String()
		}

		balance := "unknown"
		if lamports, ok := w.Balance(); ok {
			balance = quote.SOLFromLamports(lamports).String()
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.ID(), pub, balance, w.Spend().String(), w.Estimate().Display())
	}

	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t\n", b.TotalSpend().String())
	return tw.Flush()
}

// renderResults prints the outcome of every executed wallet.
func renderResults(out io.Writer, results []status.ExecutionResult) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "WALLET\tSTATE\tSIGNATURE\tERROR")

	for _, res := range results {
		sig := res.Signature
		if sig == "" {
			sig = "-"
		}

		errText := "-"
		if res.ErrorKind != "" {
			errText = res.ErrorKind
			if res.Error != "" {
				errText += ": " + res.Error
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.WalletID, res.State, sig, errText)
	}
	return tw.Flush()
}

func renderTransition(out io.Writer, res status.ExecutionResult) {
	switch {
	case res.ErrorKind != "":
		fmt.Fprintf(out, "[%s] %s (%s)\n", res.WalletID, res.State, res.ErrorKind)
	case res.Signature != "":
		fmt.Fprintf(out, "[%s] %s %s\n", res.WalletID, res.State, res.Signature)
	default:
		fmt.Fprintf(out, "[%s] %s\n", res.WalletID, res.State)
	}
}
