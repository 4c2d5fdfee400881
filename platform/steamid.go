package platform

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidID is returned when a string is not a recognisable Steam ID.
var ErrInvalidID = errors.New("invalid steam id")

// ID is a 64-bit Steam ID: universe(8) | account type(4) | instance(20) | account number(32).
type ID uint64

const (
	universePublic    = 1
	typeIndividual    = 1
	instanceDesktop   = 1
	accountIDMask     = 0xFFFFFFFF
	instanceShift     = 32
	typeShift         = 52
	universeShift     = 56
	instanceMask      = 0xFFFFF
	typeMask          = 0xF
	maxKnownUniverse  = 5
	maxKnownAccountTy = 10
)

var (
	steam2Pattern = regexp.MustCompile(`^STEAM_([0-5]):([0-1]):([0-9]+)$`)
	steam3Pattern = regexp.MustCompile(`^\[([a-zA-Z]):([0-5]):([0-9]+)(?::([0-9]+))?\]$`)
)

var steam3Types = map[byte]uint64{
	'I': 0,
	'U': 1,
	'M': 2,
	'G': 3,
	'A': 4,
	'P': 5,
	'C': 6,
	'g': 7,
	'T': 8,
	'L': 8,
	'c': 8,
	'a': 10,
}

// ParseID parses a SteamID64, Steam2 ("STEAM_0:1:123") or Steam3
// ("[U:1:246]") identifier.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidID)
	}

	if m := steam2Pattern.FindStringSubmatch(s); m != nil {
		universe, _ := strconv.ParseUint(m[1], 10, 8)
		if universe == 0 {
			universe = universePublic
		}
		y, _ := strconv.ParseUint(m[2], 10, 32)
		z, err := strconv.ParseUint(m[3], 10, 32)
		if err != nil || z*2+y > accountIDMask {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		return compose(universe, typeIndividual, instanceDesktop, z*2+y), nil
	}

	if m := steam3Pattern.FindStringSubmatch(s); m != nil {
		accountType, ok := steam3Types[m[1][0]]
		if !ok {
			return 0, fmt.Errorf("%w: unknown account type %q", ErrInvalidID, m[1])
		}
		universe, _ := strconv.ParseUint(m[2], 10, 8)
		accountID, err := strconv.ParseUint(m[3], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		var instance uint64
		switch {
		case m[4] != "":
			instance, err = strconv.ParseUint(m[4], 10, 20)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
			}
		case accountType == typeIndividual:
			instance = instanceDesktop
		}
		return compose(universe, accountType, instance, accountID), nil
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	id := ID(v)
	if id == 0 || id.Universe() > maxKnownUniverse || id.AccountType() > maxKnownAccountTy {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// NewIndividualID returns the public-universe desktop SteamID64 for an
// account number.
func NewIndividualID(accountID uint32) ID {
	return compose(universePublic, typeIndividual, instanceDesktop, uint64(accountID))
}

func compose(universe, accountType, instance, accountID uint64) ID {
	return ID(universe<<universeShift |
		(accountType&typeMask)<<typeShift |
		(instance&instanceMask)<<instanceShift |
		accountID&accountIDMask)
}

func (id ID) Universe() uint64    { return uint64(id) >> universeShift }
func (id ID) AccountType() uint64 { return uint64(id) >> typeShift & typeMask }
func (id ID) AccountID() uint32   { return uint32(uint64(id) & accountIDMask) }

// String returns the decimal SteamID64 form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
