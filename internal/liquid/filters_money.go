package liquid

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MoneyConfig controls how amounts are printed.
type MoneyConfig struct {
	Currency      string
	Locale        string
	Format        string
	DecimalPlaces int
}

// DefaultMoneyConfig is used when the render has no shop settings.
var DefaultMoneyConfig = MoneyConfig{
	Currency:      "COP",
	Locale:        "es-CO",
	Format:        "${{amount}}",
	DecimalPlaces: 2,
}

var printers sync.Map // locale -> *message.Printer

func printerFor(locale string) *message.Printer {
	if p, ok := printers.Load(locale); ok {
		return p.(*message.Printer)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p, _ := printers.LoadOrStore(locale, message.NewPrinter(tag))
	return p.(*message.Printer)
}

// FormatAmount prints a number grouped for locale with a fixed number of
// decimals.
func FormatAmount(amount float64, locale string, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return printerFor(locale).Sprint(number.Decimal(amount,
		number.MinFractionDigits(decimals),
		number.MaxFractionDigits(decimals),
	))
}

// FormatMoney substitutes the formatted amount into the {{amount}}
// placeholder of the configured format.
func FormatMoney(amount float64, cfg MoneyConfig) string {
	format := cfg.Format
	if format == "" {
		format = DefaultMoneyConfig.Format
	}
	return strings.Replace(format, "{{amount}}", FormatAmount(amount, cfg.Locale, cfg.DecimalPlaces), 1)
}

// moneyConfig reads the money settings from the shop (or store) variable.
func moneyConfig(c *Context) MoneyConfig {
	cfg := DefaultMoneyConfig
	shop := c.Get("shop")
	if shop == nil {
		shop = c.Get("store")
	}
	if v, ok := property(shop, "currency"); ok && toString(v) != "" {
		cfg.Currency = toString(v)
	}
	if v, ok := property(shop, "currency_locale"); ok && toString(v) != "" {
		cfg.Locale = toString(v)
	}
	if v, ok := property(shop, "currency_decimal_places"); ok {
		if n, ok := toInt(v); ok {
			cfg.DecimalPlaces = n
		}
	}
	for _, key := range []string{"currency_format", "money_format"} {
		if v, ok := property(shop, key); ok && toString(v) != "" {
			cfg.Format = toString(v)
			break
		}
	}
	return cfg
}

func moneyFilters() map[string]FilterFunc {
	return map[string]FilterFunc{
		"money": func(c *Context, in any, args []any, _ map[string]any) (any, error) {
			cfg := moneyConfig(c)
			if f := argString(args, 0, ""); f != "" {
				cfg.Format = f
			}
			amount, ok := toNumber(in)
			if !ok {
				amount = 0
			}
			return FormatMoney(amount, cfg), nil
		},
		"money_with_currency": func(c *Context, in any, _ []any, _ map[string]any) (any, error) {
			cfg := moneyConfig(c)
			amount, _ := toNumber(in)
			return FormatMoney(amount, cfg) + " " + cfg.Currency, nil
		},
		"money_without_currency": func(c *Context, in any, _ []any, _ map[string]any) (any, error) {
			cfg := moneyConfig(c)
			amount, _ := toNumber(in)
			return FormatAmount(amount, cfg.Locale, cfg.DecimalPlaces), nil
		},
		"money_without_decimal": func(c *Context, in any, _ []any, _ map[string]any) (any, error) {
			cfg := moneyConfig(c)
			amount, _ := toNumber(in)
			return FormatAmount(amount, cfg.Locale, 0), nil
		},
		"currency_symbol": func(c *Context, in any, _ []any, _ map[string]any) (any, error) {
			format := toString(in)
			if format == "" {
				format = moneyConfig(c).Format
			}
			if sym := strings.TrimSpace(strings.Replace(format, "{{amount}}", "", 1)); sym != "" {
				return sym, nil
			}
			return "$", nil
		},
		"cents_to_price": func(_ *Context, in any, _ []any, _ map[string]any) (any, error) {
			cents, _ := toNumber(in)
			return cents / 100, nil
		},
	}
}
