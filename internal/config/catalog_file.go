/**
 * @description
 * Loads the billing catalog file: the product mapping table, well-known
 * ledger item references, the paylater coupon set, and the usage billing
 * exclusion lists. Prices are quoted strings in the file and parse into
 * exact decimals here.
 */
package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/juliebasler-source/basler-webhooks/internal/catalog"
)

// BillingRules are the non-catalog knobs that live alongside the catalog in
// the billing file.
type BillingRules struct {
	PaylaterCouponCodes  []string
	UsageExcludeKeywords []string
	UsageAdminAddresses  []string
}

type catalogFileEntry struct {
	Name          string   `mapstructure:"name"`
	SKU           string   `mapstructure:"sku"`
	Keywords      []string `mapstructure:"keywords"`
	ItemRef       string   `mapstructure:"item_ref"`
	StandardPrice string   `mapstructure:"standard_price"`
}

type catalogFile struct {
	Items                []catalogFileEntry `mapstructure:"items"`
	DiscountItemRef      string             `mapstructure:"discount_item_ref"`
	ExtrasItemRef        string             `mapstructure:"extras_item_ref"`
	ExtrasPrice          string             `mapstructure:"extras_price"`
	FullLinkItemRef      string             `mapstructure:"full_link_item_ref"`
	FullLinkPrice        string             `mapstructure:"full_link_price"`
	InterviewItemRef     string             `mapstructure:"interview_item_ref"`
	InterviewPrice       string             `mapstructure:"interview_price"`
	PaylaterCouponCodes  []string           `mapstructure:"paylater_coupon_codes"`
	UsageExcludeKeywords []string           `mapstructure:"usage_exclude_keywords"`
	UsageAdminAddresses  []string           `mapstructure:"usage_admin_addresses"`
}

// LoadCatalog reads the billing catalog file.
func LoadCatalog(path string) (catalog.Config, BillingRules, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return catalog.Config{}, BillingRules{}, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var file catalogFile
	if err := v.Unmarshal(&file); err != nil {
		return catalog.Config{}, BillingRules{}, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	cfg := catalog.Config{
		DiscountItemRef:  file.DiscountItemRef,
		ExtrasItemRef:    file.ExtrasItemRef,
		FullLinkItemRef:  file.FullLinkItemRef,
		InterviewItemRef: file.InterviewItemRef,
	}

	var err error
	if cfg.ExtrasPrice, err = parsePrice(file.ExtrasPrice, "extras_price"); err != nil {
		return catalog.Config{}, BillingRules{}, err
	}
	if cfg.FullLinkPrice, err = parsePrice(file.FullLinkPrice, "full_link_price"); err != nil {
		return catalog.Config{}, BillingRules{}, err
	}
	if cfg.InterviewPrice, err = parsePrice(file.InterviewPrice, "interview_price"); err != nil {
		return catalog.Config{}, BillingRules{}, err
	}

	for _, item := range file.Items {
		price, err := parsePrice(item.StandardPrice, fmt.Sprintf("items[%s].standard_price", item.Name))
		if err != nil {
			return catalog.Config{}, BillingRules{}, err
		}
		cfg.Entries = append(cfg.Entries, catalog.Entry{
			Name:          item.Name,
			SKU:           item.SKU,
			Keywords:      item.Keywords,
			ItemRef:       item.ItemRef,
			StandardPrice: price,
		})
	}

	rules := BillingRules{
		PaylaterCouponCodes:  file.PaylaterCouponCodes,
		UsageExcludeKeywords: file.UsageExcludeKeywords,
		UsageAdminAddresses:  file.UsageAdminAddresses,
	}
	return cfg, rules, nil
}

func parsePrice(value, field string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog field %s has invalid price %q: %w", field, value, err)
	}
	return price, nil
}
