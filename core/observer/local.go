package observer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/davidahmann/hoststate/core/docvalue"
	"github.com/davidahmann/hoststate/core/statedoc"
)

// Local observes the machine the process runs on. It is the default
// observer for the CLI; remote transports plug in behind the same
// interface.
type Local struct {
	rootPath string
}

// NewLocal returns a local observer measuring disk usage at rootPath
// (default "/").
func NewLocal(rootPath string) *Local {
	if rootPath == "" {
		rootPath = "/"
	}
	return &Local{rootPath: rootPath}
}

func (l *Local) Scan(ctx context.Context, category statedoc.Category) (docvalue.Value, error) {
	var (
		payload docvalue.Value
		err     error
	)
	switch category {
	case statedoc.CategorySystem:
		payload, err = l.scanSystem(ctx)
	case statedoc.CategoryHardware:
		payload, err = l.scanHardware(ctx)
	case statedoc.CategoryNetwork:
		payload, err = l.scanNetwork(ctx)
	case statedoc.CategorySoftware:
		payload, err = l.scanSoftware(ctx)
	case statedoc.CategoryServices:
		payload, err = l.scanServices(ctx)
	case statedoc.CategoryGaming:
		// No generic source for gaming facts on a stock host; the section
		// stays operator-maintained via update.
		payload, err = docvalue.EmptyMap(), nil
	default:
		return docvalue.Value{}, &Error{Category: category, Cause: fmt.Errorf("unsupported category")}
	}
	if err != nil {
		return docvalue.Value{}, &Error{Category: category, Cause: err}
	}
	return payload, nil
}

func (l *Local) scanSystem(ctx context.Context) (docvalue.Value, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return docvalue.Value{}, fmt.Errorf("host info: %w", err)
	}
	entries := map[string]docvalue.Value{
		"hostname": docvalue.String(info.Hostname),
		"uptime":   docvalue.Number(float64(info.Uptime)),
	}

	if virtual, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		entries["memory_total"] = docvalue.Number(float64(virtual.Total))
		entries["memory_used"] = docvalue.Number(float64(virtual.Used))
		entries["memory_free"] = docvalue.Number(float64(virtual.Available))
	}
	if usage, err := disk.UsageWithContext(ctx, l.rootPath); err == nil {
		entries["disk_total"] = docvalue.Number(float64(usage.Total))
		entries["disk_used"] = docvalue.Number(float64(usage.Used))
		entries["disk_free"] = docvalue.Number(float64(usage.Free))
	}
	if average, err := load.AvgWithContext(ctx); err == nil {
		entries["load_average"] = docvalue.List(
			docvalue.Number(average.Load1),
			docvalue.Number(average.Load5),
			docvalue.Number(average.Load15),
		)
	}
	if temperature, ok := cpuTemperature(ctx); ok {
		entries["cpu_temperature"] = docvalue.Number(temperature)
	}
	return docvalue.Map(entries), nil
}

// cpuTemperature picks the first plausible CPU sensor. Raspberry Pi exposes
// "cpu_thermal"; x86 hosts usually "coretemp" or "k10temp".
func cpuTemperature(ctx context.Context) (float64, bool) {
	readings, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		return 0, false
	}
	for _, reading := range readings {
		key := strings.ToLower(reading.SensorKey)
		if reading.Temperature <= 0 {
			continue
		}
		if strings.Contains(key, "cpu") || strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp") {
			return reading.Temperature, true
		}
	}
	return 0, false
}

func (l *Local) scanHardware(ctx context.Context) (docvalue.Value, error) {
	entries := map[string]docvalue.Value{}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		entries["cpu_model"] = docvalue.String(infos[0].ModelName)
	}
	if logical, err := cpu.CountsWithContext(ctx, true); err == nil {
		entries["cpu_count"] = docvalue.Number(float64(logical))
	}
	if virtual, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		entries["memory_total"] = docvalue.Number(float64(virtual.Total))
	}
	if partitions, err := disk.PartitionsWithContext(ctx, false); err == nil {
		disks := make([]docvalue.Value, 0, len(partitions))
		for _, partition := range partitions {
			disks = append(disks, docvalue.Map(map[string]docvalue.Value{
				"device":     docvalue.String(partition.Device),
				"mountpoint": docvalue.String(partition.Mountpoint),
				"fstype":     docvalue.String(partition.Fstype),
			}))
		}
		entries["disks"] = docvalue.List(disks...)
	}
	if len(entries) == 0 {
		return docvalue.Value{}, fmt.Errorf("no hardware facts available")
	}
	return docvalue.Map(entries), nil
}

func (l *Local) scanNetwork(ctx context.Context) (docvalue.Value, error) {
	interfaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return docvalue.Value{}, fmt.Errorf("interfaces: %w", err)
	}
	entries := map[string]docvalue.Value{}
	for _, nic := range interfaces {
		addresses := make([]docvalue.Value, 0, len(nic.Addrs))
		for _, address := range nic.Addrs {
			addresses = append(addresses, docvalue.String(address.Addr))
		}
		up := false
		for _, flag := range nic.Flags {
			if flag == "up" {
				up = true
				break
			}
		}
		entries[nic.Name] = docvalue.Map(map[string]docvalue.Value{
			"mac":       docvalue.String(nic.HardwareAddr),
			"addresses": docvalue.List(addresses...),
			"up":        docvalue.Bool(up),
		})
	}
	return docvalue.Map(entries), nil
}

func (l *Local) scanSoftware(ctx context.Context) (docvalue.Value, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return docvalue.Value{}, fmt.Errorf("host info: %w", err)
	}
	return docvalue.Map(map[string]docvalue.Value{
		"os":               docvalue.String(info.OS),
		"platform":         docvalue.String(info.Platform),
		"platform_version": docvalue.String(info.PlatformVersion),
		"kernel_version":   docvalue.String(info.KernelVersion),
		"kernel_arch":      docvalue.String(info.KernelArch),
	}), nil
}

func (l *Local) scanServices(ctx context.Context) (docvalue.Value, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return docvalue.Value{}, fmt.Errorf("host info: %w", err)
	}
	return docvalue.Map(map[string]docvalue.Value{
		"process_count": docvalue.Number(float64(info.Procs)),
	}), nil
}
