package urls

// Documentation URLs for guides and troubleshooting

// DevicePortal is the Windows Device Portal overview for IoT Core, covering
// how to enable it and which port it listens on.
const DevicePortal = "https://learn.microsoft.com/en-us/windows/iot-core/manage-your-device/deviceportal"

// DevicePortalAPI is the Device Portal core REST API reference, including
// the power control and resource manager endpoints.
const DevicePortalAPI = "https://learn.microsoft.com/en-us/windows/uwp/debug-test-perf/device-portal-api-core"
