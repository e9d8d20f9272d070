// Timing Engine.
//
// Connects to LLRP RFID readers, turns tag reads into one crossing event per
// tag pass at each timing point and reports reader health.
//
//     Schemes: http
//     Version: 1.0.0
//
//     Produces:
//     - application/json
//
//
// swagger:meta
package main
