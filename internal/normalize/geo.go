package normalize

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// GeoResult is the resolved geographic attribution for a request.
type GeoResult struct {
	Country string // uppercase ISO 3166-1 alpha-2, or "" if unknown
	Region  string
	City    string
	Lat     float64
	Lon     float64
}

// GeoResolver resolves client IPs to GeoResult, trying provider headers
// first and falling back to a lazily-opened MaxMind-style database.
type GeoResolver struct {
	dbPath string

	mu sync.Mutex
	db *geoip2.Reader
}

// NewGeoResolver returns a resolver that opens dbPath on first lookup.
// An empty dbPath disables the MaxMind fallback entirely.
func NewGeoResolver(dbPath string) *GeoResolver {
	return &GeoResolver{dbPath: dbPath}
}

// Resolve attempts provider headers, then the GeoIP database keyed by
// clientIP. Unresolvable fields are left zero/empty rather than erroring.
func (g *GeoResolver) Resolve(headers http.Header, clientIP string) GeoResult {
	if res, ok := fromProviderHeaders(headers); ok {
		return clampGeo(res)
	}
	return clampGeo(g.fromMaxMind(clientIP))
}

func fromProviderHeaders(h http.Header) (GeoResult, bool) {
	country := firstNonEmpty(h.Get("x-vercel-ip-country"), h.Get("cf-ipcountry"), h.Get("x-geo-country"))
	if country == "" {
		return GeoResult{}, false
	}
	region := firstNonEmpty(h.Get("x-vercel-ip-country-region"), h.Get("cf-region"), h.Get("x-geo-region"))
	city := firstNonEmpty(h.Get("x-vercel-ip-city"), h.Get("cf-ipcity"), h.Get("x-geo-city"))
	lat, _ := strconv.ParseFloat(firstNonEmpty(h.Get("x-vercel-ip-latitude"), h.Get("x-geo-latitude")), 64)
	lon, _ := strconv.ParseFloat(firstNonEmpty(h.Get("x-vercel-ip-longitude"), h.Get("x-geo-longitude")), 64)
	return GeoResult{Country: country, Region: region, City: city, Lat: lat, Lon: lon}, true
}

func (g *GeoResolver) fromMaxMind(clientIP string) GeoResult {
	if g.dbPath == "" || clientIP == "" {
		return GeoResult{}
	}
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return GeoResult{}
	}
	reader, err := g.openReader()
	if err != nil {
		return GeoResult{}
	}
	rec, err := reader.City(ip)
	if err != nil {
		return GeoResult{}
	}
	res := GeoResult{
		Country: rec.Country.IsoCode,
		City:    rec.City.Names["en"],
		Lat:     rec.Location.Latitude,
		Lon:     rec.Location.Longitude,
	}
	if len(rec.Subdivisions) > 0 {
		res.Region = rec.Subdivisions[0].IsoCode
	}
	return res
}

func (g *GeoResolver) openReader() (*geoip2.Reader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db != nil {
		return g.db, nil
	}
	reader, err := geoip2.Open(g.dbPath)
	if err != nil {
		return nil, err
	}
	g.db = reader
	return g.db, nil
}

// Close releases the underlying mmap, if opened.
func (g *GeoResolver) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

func clampGeo(res GeoResult) GeoResult {
	if res.Lat < -90 {
		res.Lat = -90
	} else if res.Lat > 90 {
		res.Lat = 90
	}
	if res.Lon < -180 {
		res.Lon = -180
	} else if res.Lon > 180 {
		res.Lon = 180
	}
	country := strings.ToUpper(strings.TrimSpace(res.Country))
	if country == "" || country == "UNKNOWN" {
		country = ""
	}
	res.Country = country
	if strings.EqualFold(res.Region, "unknown") {
		res.Region = ""
	}
	if strings.EqualFold(res.City, "unknown") {
		res.City = ""
	}
	return res
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
