/*
go-trafficvision monitors road junctions from live or recorded video.  Each
junction's source is captured in the background, a single loop batches the
latest frames through a vehicle detector every few ticks, turns the
detections into per junction vehicle counts and an emergency vehicle flag,
reports them to a telemetry endpoint at a fixed interval and shows all
junctions annotated in one grid.

Detection is delegated to an inference service over HTTP.  Track ids are
assigned either by the service or locally with the ByteTrack tracker in the
tracker package.

See the command center example in the example subdirectory.
*/
package trafficvision
