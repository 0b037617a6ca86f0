// Command pricecheck is a terminal front end for the grocery price API.
//
//	pricecheck -api http://localhost:3000
//
// Type "help" at the prompt for the list of commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"grocery-price-api/internal/autocomplete"
	"grocery-price-api/internal/client"
	"grocery-price-api/internal/config"
	"grocery-price-api/internal/deal"
	"grocery-price-api/internal/logger"
	"grocery-price-api/internal/platform"
	"grocery-price-api/internal/service"
)

const helpText = `Commands:
  item <text>   type into the item field
  pick <n>      choose suggestion n
  usd <price>   enter a price in USD per lb
  cad <price>   enter a price in CAD per kg
  close         hide the suggestion list
  clear         reset every field
  show          print the current state
  help          print this help
  quit          exit`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	apiURL := flag.String("api", "http://localhost:"+cfg.Port, "Base URL of the grocery price API")
	timeout := flag.Duration("timeout", 10*time.Second, "HTTP timeout")
	debounce := flag.Duration("debounce", cfg.ImageDebounce, "Quiet period before an image lookup")
	flag.Parse()

	logger := logger.NewWithFormat(cfg.LogLevel, "text", os.Stderr)

	ctx, stop := platform.NewShutdownContext(context.Background())
	defer stop()

	apiClient := client.New(*apiURL, *timeout, logger)
	exchangeRates := service.NewExchangeRateService(apiClient, cfg.DefaultExchangeRate, cfg.RateRefreshInterval, logger)
	exchangeRates.Start(ctx)
	defer exchangeRates.Stop()

	out := newPrinter(os.Stdout)
	controller := autocomplete.NewController(autocomplete.Options{
		Dataset:       apiClient,
		Rates:         exchangeRates,
		Images:        apiClient,
		Logger:        logger,
		ImageDebounce: *debounce,
		BaseContext:   ctx,
		OnChange:      out.imageChanged,
	})
	defer controller.Close()

	if err := controller.Refresh(ctx); err != nil {
		logger.Warnf("Could not preload dataset from %s: %v", *apiURL, err)
	}

	fmt.Fprintln(os.Stdout, helpText)
	run(ctx, controller, os.Stdin, out)
}

// run reads commands until quit, EOF or ctx is cancelled
func run(ctx context.Context, controller *autocomplete.Controller, input io.Reader, out *printer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		out.prompt()
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !execute(ctx, controller, line, out) {
				return
			}
		}
	}
}

// execute applies one command and reports whether to keep going
func execute(ctx context.Context, controller *autocomplete.Controller, line string, out *printer) bool {
	command, argument, _ := strings.Cut(strings.TrimSpace(line), " ")
	argument = strings.TrimSpace(argument)

	switch strings.ToLower(command) {
	case "":
		return true
	case "quit", "exit":
		return false
	case "help":
		out.println(helpText)
		return true
	case "item":
		controller.TypeItem(ctx, argument)
	case "pick":
		suggestions := controller.Snapshot().Suggestions
		n, err := strconv.Atoi(argument)
		if err != nil || n < 1 || n > len(suggestions) {
			out.println("no such suggestion")
			return true
		}
		controller.SelectSuggestion(ctx, suggestions[n-1])
	case "usd":
		controller.SetUSDPerLb(ctx, argument)
	case "cad":
		controller.SetCADPerKg(ctx, argument)
	case "close":
		controller.ClickOutside()
	case "clear":
		controller.Clear()
	case "show":
	default:
		out.println("unknown command " + strconv.Quote(command) + ", type help")
		return true
	}

	out.state(controller.Snapshot())
	return true
}

// printer serializes output from the prompt loop and the image debounce timer
type printer struct {
	mu        sync.Mutex
	w         io.Writer
	lastImage string
	good      *color.Color
	bad       *color.Color
	faint     *color.Color
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:     w,
		good:  color.New(color.FgGreen, color.Bold),
		bad:   color.New(color.FgRed, color.Bold),
		faint: color.New(color.Faint),
	}
}

func (p *printer) println(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, text)
}

func (p *printer) prompt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, "> ")
}

func (p *printer) state(state autocomplete.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "item: %q\n", state.Item)
	if state.SuggestionsOpen {
		for i, suggestion := range state.Suggestions {
			p.faint.Fprintf(p.w, "  %d. %s\n", i+1, suggestion)
		}
	}
	fmt.Fprintf(p.w, "USD/lb: %s   CAD/kg: %s\n", orDash(state.USDPerLb), orDash(state.CADPerKg))
	if state.AverageText != "" {
		fmt.Fprintln(p.w, state.AverageText)
	}
	switch state.DealStyling {
	case deal.GoodDealStyling:
		p.good.Fprintln(p.w, state.DealText)
	case deal.NotGoodDealStyling:
		p.bad.Fprintln(p.w, state.DealText)
	}
}

// imageChanged is the controller's OnChange hook. It only reports image
// panel changes, which arrive from the debounce timer.
func (p *printer) imageChanged(state autocomplete.State) {
	imageURL := ""
	if state.ImageVisible {
		imageURL = state.ImageURL
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if imageURL == p.lastImage {
		return
	}
	p.lastImage = imageURL
	if imageURL == "" {
		p.faint.Fprintln(p.w, "\n[image hidden]")
	} else {
		fmt.Fprintf(p.w, "\n[image] %s\n", imageURL)
	}
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
