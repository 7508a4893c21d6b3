package marketdata

import "sort"

// Universe names accepted by Universe.
const (
	UniverseNifty50     = "nifty_50"
	UniverseTop10Liquid = "top_10_liquid"
	UniverseAllFNO      = "all_fno"
)

// lotSizes holds the exchange F&O lot sizes (Nov 2024 schedule).
var lotSizes = map[string]int{
	"RELIANCE":   250,
	"TCS":        150,
	"HDFCBANK":   550,
	"INFY":       300,
	"ICICIBANK":  700,
	"HINDUNILVR": 300,
	"ITC":        1600,
	"SBIN":       750,
	"BHARTIARTL": 475,
	"KOTAKBANK":  400,
	"LT":         150,
	"AXISBANK":   600,
	"ASIANPAINT": 300,
	"MARUTI":     100,
	"TITAN":      375,
	"BAJFINANCE": 125,
	"HCLTECH":    350,
	"SUNPHARMA":  350,
	"ULTRACEMCO": 100,
	"NESTLEIND":  50,
	"WIPRO":      1500,
	"ONGC":       1925,
	"NTPC":       2875,
	"POWERGRID":  2700,
	"M&M":        350,
	"TATAMOTORS": 575,
	"TECHM":      600,
	"JSWSTEEL":   675,
	"INDUSINDBK": 450,
	"ADANIPORTS": 500,
	"BAJAJFINSV": 125,
	"HINDALCO":   1400,
	"COALINDIA":  2175,
	"DIVISLAB":   200,
	"GRASIM":     425,
	"TATACONSUM": 675,
	"DRREDDY":    125,
	"CIPLA":      650,
	"EICHERMOT":  175,
	"BRITANNIA":  200,
	"APOLLOHOSP": 125,
	"HEROMOTOCO": 300,
	"SBILIFE":    375,
	"BPCL":       1800,
	"TATASTEEL":  500,
	"BAJAJ-AUTO": 125,
	"HDFCLIFE":   1100,
	"SHREECEM":   25,
	"ADANIENT":   250,

	"VEDL":       1550,
	"TATAPOWER":  1350,
	"GAIL":       2775,
	"JINDALSTEL": 1750,
	"DLF":        1650,
	"GODREJPROP": 750,
	"SIEMENS":    75,
	"HAVELLS":    625,
	"PIDILITIND": 375,
	"DABUR":      1250,
	"MARICO":     1200,
	"COLPAL":     350,
	"MUTHOOTFIN": 500,
	"CHOLAFIN":   625,
	"BEL":        3350,
	"HAL":        175,
	"IOC":        6500,
	"IRCTC":      175,
	"COFORGE":    200,
	"PERSISTENT": 150,
	"MCX":        250,
	"CUMMINSIND": 250,
	"VOLTAS":     350,
	"AMBUJACEM":  1200,
	"TRENT":      175,
	"ZOMATO":     1800,
	"PAYTM":      875,
	"DELHIVERY":  750,
	"PNB":        6000,
	"BANKBARODA": 3950,
	"FEDERALBNK": 4000,
	"IDFCFIRSTB": 7500,
}

var nifty50 = []string{
	"RELIANCE", "TCS", "HDFCBANK", "INFY", "HINDUNILVR", "ICICIBANK", "KOTAKBANK",
	"SBIN", "BHARTIARTL", "ITC", "LT", "AXISBANK", "ASIANPAINT", "MARUTI", "TITAN",
	"BAJFINANCE", "HCLTECH", "SUNPHARMA", "ULTRACEMCO", "NESTLEIND", "WIPRO", "ONGC",
	"NTPC", "POWERGRID", "M&M", "TATAMOTORS", "TECHM", "JSWSTEEL", "INDUSINDBK",
	"ADANIPORTS", "BAJAJFINSV", "HINDALCO", "COALINDIA", "DIVISLAB", "GRASIM",
	"TATACONSUM", "DRREDDY", "CIPLA", "EICHERMOT", "BRITANNIA", "APOLLOHOSP",
	"HEROMOTOCO", "SBILIFE", "BPCL", "TATASTEEL", "BAJAJ-AUTO", "HDFCLIFE",
	"SHREECEM", "ADANIENT",
}

var top10Liquid = []string{
	"RELIANCE", "TCS", "HDFCBANK", "INFY", "ICICIBANK",
	"SBIN", "BHARTIARTL", "AXISBANK", "ITC", "KOTAKBANK",
}

// LotSize returns the contract lot size for symbol, or 1 when unknown.
func LotSize(symbol string) int {
	if n, ok := lotSizes[symbol]; ok {
		return n
	}
	return 1
}

// Universe returns a copy of the named symbol list. Unknown names fall back
// to nifty_50.
func Universe(name string) []string {
	switch name {
	case UniverseTop10Liquid:
		return append([]string(nil), top10Liquid...)
	case UniverseAllFNO:
		out := make([]string, 0, len(lotSizes))
		for s := range lotSizes {
			out = append(out, s)
		}
		sort.Strings(out)
		return out
	default:
		return append([]string(nil), nifty50...)
	}
}

// UniverseNames lists the known universes.
func UniverseNames() []string {
	return []string{UniverseNifty50, UniverseTop10Liquid, UniverseAllFNO}
}
