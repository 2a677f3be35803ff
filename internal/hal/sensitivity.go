package hal

import "fmt"

// ASCCode selects an adaptive sensitivity operation.
type ASCCode int

const (
	ASCReadMaxDelta ASCCode = iota
	ASCGetFwSensitivity
	ASCWriteSensitivity
)

// SensitivityLevel picks one of the derived touch thresholds.
type SensitivityLevel int

const (
	SensitivityNormal SensitivityLevel = iota
	SensitivityAcute
	SensitivityObtuse
)

// ASCInfo holds the thresholds derived from the firmware touch maximum.
type ASCInfo struct {
	Normal uint32 `json:"normal"`
	Acute  uint32 `json:"acute"`
	Obtuse uint32 `json:"obtuse"`
}

func newASCInfo(touchMax uint32) ASCInfo {
	return ASCInfo{
		Normal: touchMax,
		Acute:  (touchMax / 10) * 6,
		Obtuse: touchMax,
	}
}

// Sensitivity runs one adaptive sensitivity operation. ASCReadMaxDelta
// returns the max delta register, ASCGetFwSensitivity the firmware touch
// maximum, and ASCWriteSensitivity the threshold written for level.
func (d *Device) Sensitivity(code ASCCode, level SensitivityLevel) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch code {
	case ASCReadMaxDelta:
		return d.e.ReadValue(d.regs.MaxDelta)
	case ASCGetFwSensitivity, ASCWriteSensitivity:
	default:
		return 0, fmt.Errorf("asc code %d: %w", code, ErrInvalidArgument)
	}

	r, err := d.e.ReadValue(d.regs.TouchMaxR)
	if err != nil {
		return 0, err
	}
	asc := newASCInfo(r)
	if code == ASCGetFwSensitivity {
		d.log.Info("asc", "max_r", r, "normal", asc.Normal, "acute", asc.Acute, "obtuse", asc.Obtuse)
		return r, nil
	}

	w := r
	switch level {
	case SensitivityNormal:
		w = asc.Normal
	case SensitivityAcute:
		w = asc.Acute
	case SensitivityObtuse:
		w = asc.Obtuse
	}
	if err := d.e.WriteValue(d.regs.TouchMaxW, w); err != nil {
		return 0, err
	}
	d.log.Info("asc: max_w changed", "from", r, "to", w)
	return w, nil
}
