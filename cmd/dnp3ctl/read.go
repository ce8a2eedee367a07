package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnp3go/master/app"
	"github.com/dnp3go/master/master"
)

// countingHandler tallies analog inputs, binary inputs and counters so the
// CLI can print a one-line summary; other measurement kinds are not
// counted.
type countingHandler struct {
	app.NopReadHandler
	analog, binary, counter, other int
}

func (h *countingHandler) AnalogInputs(it *app.AnalogInputIterator) {
	for {
		if _, ok := it.Next(); !ok {
			return
		}
		h.analog++
	}
}

func (h *countingHandler) BinaryInputs(it *app.BinaryInputIterator) {
	for {
		if _, ok := it.Next(); !ok {
			return
		}
		h.binary++
	}
}

func (h *countingHandler) Counters(it *app.CounterIterator) {
	for {
		if _, ok := it.Next(); !ok {
			return
		}
		h.counter++
	}
}

var readAllAnalogCmd = &cobra.Command{
	Use:   "rao",
	Short: "Read class 0 static data, the rao verb (g40 is not requested on its own, and the summary counts no g40 points)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return readClasses([]int{0})
	},
}

var readMultipleCmd = &cobra.Command{
	Use:   "rmo <class...>",
	Short: "Read multiple event/static classes (rmo), e.g. `rmo 1 2 3`",
	RunE: func(cmd *cobra.Command, args []string) error {
		classes, err := parseClassArgs(args)
		if err != nil {
			return err
		}
		return readClasses(classes)
	},
}

var eventPollCmd = &cobra.Command{
	Use:   "evt",
	Short: "Demand poll of event classes 1-3 (evt)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return readClasses([]int{1, 2, 3})
	},
}

func parseClassArgs(args []string) ([]int, error) {
	var classes []int
	for _, a := range args {
		var c int
		if _, err := fmt.Sscanf(a, "%d", &c); err != nil {
			return nil, fmt.Errorf("dnp3ctl: invalid class %q", a)
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func readClasses(classes []int) error {
	ch, assoc, cancel, err := openChannel()
	if err != nil {
		return err
	}
	defer cancel()
	defer ch.Stop()

	t := master.NewReadTask(app.ClassRequestHeaders(classes))
	resp, err := runTask(ch, assoc, t, 10*time.Second)
	if err != nil {
		return err
	}

	h := &countingHandler{}
	if err := app.Dispatch(resp, h); err != nil {
		return err
	}
	fmt.Printf("received %d analog, %d binary, %d counter points\n", h.analog, h.binary, h.counter)
	return nil
}
