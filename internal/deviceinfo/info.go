package deviceinfo

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	deviceProp    = "ro.product.device"
	versionProp   = "ro.build.romversion"
	buildDateProp = "ro.build.date.utc"

	// DateLayout is the release date format used by the distribution server.
	DateLayout = "2006.01.02"

	backupLayout = "2006.01.02.15.04"
)

// Info describes the installed build. It is loaded once at startup from an
// Android-style property file, with an optional device-name override from
// config.
type Info struct {
	Device    string
	Version   string
	BuildDate time.Time
}

// Load reads the property file and applies the override. A missing or
// partial property file is not fatal, affected fields stay empty and every
// remote release then counts as newer.
func Load(propFile, deviceOverride string) *Info {
	info := &Info{}

	props, err := readProps(propFile)
	if err != nil {
		log.Warnf("failed to read build properties from %s: %v", propFile, err)
	}

	info.Device = props[deviceProp]
	if deviceOverride != "" {
		log.Debugf("overriding device name with %s", deviceOverride)
		info.Device = deviceOverride
	}
	info.Version = props[versionProp]
	if utc, err := strconv.ParseInt(props[buildDateProp], 10, 64); err == nil {
		info.BuildDate = time.Unix(utc, 0)
	}

	return info
}

// IsNewerThanInstalled reports whether the release date string postdates the
// installed build. Unparseable dates are never newer.
func (i *Info) IsNewerThanInstalled(date string) bool {
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		log.Debugf("unparseable release date %q: %v", date, err)
		return false
	}
	return parsed.After(i.BuildDate)
}

// BackupName produces a backup directory label that never collides across
// successive backups: a minute-resolution timestamp joined with the
// installed build identifier.
func (i *Info) BackupName(now time.Time) string {
	return now.Format(backupLayout) + "-" + i.Version
}

func readProps(file string) (map[string]string, error) {
	props := make(map[string]string)

	f, err := os.Open(file)
	if err != nil {
		return props, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props, scanner.Err()
}
