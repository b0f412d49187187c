package gazetteer

import "strings"

// isoCodes is the ISO 3166-1 alpha-2 set. A 2-letter surface token matching
// one of these biases candidate selection toward that country.
const isoCodes = `ad ae af ag ai al am ao aq ar as at au aw ax az ba bb bd be
bf bg bh bi bj bl bm bn bo bq br bs bt bv bw by bz ca cc cd cf cg ch ci ck cl
cm cn co cr cu cv cw cx cy cz de dj dk dm do dz ec ee eg eh er es et fi fj fk
fm fo fr ga gb gd ge gf gg gh gi gl gm gn gp gq gr gs gt gu gw gy hk hm hn hr
ht hu id ie il im in io iq ir is it je jm jo jp ke kg kh ki km kn kp kr kw ky
kz la lb lc li lk lr ls lt lu lv ly ma mc md me mf mg mh mk ml mm mn mo mp mq
mr ms mt mu mv mw mx my mz na nc ne nf ng ni nl no np nr nu nz om pa pe pf pg
ph pk pl pm pn pr ps pt pw py qa re ro rs ru rw sa sb sc sd se sg sh si sj sk
sl sm sn so sr ss st sv sx sy sz tc td tf tg th tj tk tl tm tn to tr tt tv tw
tz ua ug um us uy uz va vc ve vg vi vn vu wf ws ye yt za zm zw`

var isoCountries = buildISOSet()

func buildISOSet() map[string]bool {
	set := make(map[string]bool, 256)
	for _, code := range strings.Fields(isoCodes) {
		set[code] = true
	}
	return set
}

// countryAliases maps country-name tokens in a surface to the ISO code they
// bias toward: "paris france" resolves against FR. Names that are also common
// place names in their own right (georgia, jordan) are deliberately absent.
var countryAliases = map[string]string{
	"afghanistan": "AF",
	"argentina":   "AR",
	"australia":   "AU",
	"austria":     "AT",
	"bangladesh":  "BD",
	"belgium":     "BE",
	"bolivia":     "BO",
	"brazil":      "BR",
	"burma":       "MM",
	"canada":      "CA",
	"chile":       "CL",
	"china":       "CN",
	"colombia":    "CO",
	"croatia":     "HR",
	"deutschland": "DE",
	"egypt":       "EG",
	"england":     "GB",
	"ethiopia":    "ET",
	"france":      "FR",
	"germany":     "DE",
	"greece":      "GR",
	"holland":     "NL",
	"iceland":     "IS",
	"india":       "IN",
	"indonesia":   "ID",
	"iran":        "IR",
	"iraq":        "IQ",
	"ireland":     "IE",
	"israel":      "IL",
	"italy":       "IT",
	"japan":       "JP",
	"kenya":       "KE",
	"mexico":      "MX",
	"morocco":     "MA",
	"netherlands": "NL",
	"nigeria":     "NG",
	"norway":      "NO",
	"pakistan":    "PK",
	"persia":      "IR",
	"peru":        "PE",
	"philippines": "PH",
	"poland":      "PL",
	"portugal":    "PT",
	"romania":     "RO",
	"russia":      "RU",
	"scotland":    "GB",
	"slovenia":    "SI",
	"spain":       "ES",
	"sweden":      "SE",
	"switzerland": "CH",
	"syria":       "SY",
	"thailand":    "TH",
	"turkey":      "TR",
	"uae":         "AE",
	"uk":          "GB",
	"ukraine":     "UA",
	"usa":         "US",
	"venezuela":   "VE",
	"vietnam":     "VN",
	"wales":       "GB",
	"yemen":       "YE",
}
